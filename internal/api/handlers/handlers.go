package handlers

import (
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/handlers/anchoring"
	"github.com/kashguard/go-evidence/internal/api/handlers/common"
	"github.com/kashguard/go-evidence/internal/api/handlers/evidence"
	"github.com/kashguard/go-evidence/internal/api/handlers/keys"
	"github.com/labstack/echo/v4"
)

func AttachAllRoutes(s *api.Server) {
	// attach our routes
	s.Router.Routes = []*echo.Route{
		common.GetMetricsRoute(s),
		common.GetReadyRoute(s),
		evidence.PostVerifyRoute(s),
		anchoring.GetIssuesRoute(s),
		keys.GetListKeysRoute(s),
		keys.GetListRequestsRoute(s),
		keys.PostCreateRequestRoute(s),
		keys.PostApproveRequestRoute(s),
		keys.PostRejectRequestRoute(s),
		keys.PostExecuteRequestRoute(s),
	}
}
