package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrAnchorService = errors.New("anchor service error")

// SubmitRequest commits one rollup root.
type SubmitRequest struct {
	MerkleRoot  string    `json:"merkle_root"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	RollupKey   string    `json:"rollup_key,omitempty"`
}

// SubmitResponse is the service's acknowledgement. Confirmation is observed
// later through Status.
type SubmitResponse struct {
	AnchorID string `json:"anchor_id"`
}

// StatusResponse is the service's current view of an anchor.
type StatusResponse struct {
	Status Status  `json:"status"`
	TxHash *string `json:"tx_hash,omitempty"`
}

type Submitter interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
}

// Client talks to the external anchoring service.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

type ClientOption func(*retryablehttp.Client)

// WithRetries sets the retry budget; tests use zero.
func WithRetries(n int, waitMin time.Duration, waitMax time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid anchor service URL %q", baseURL)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	for _, o := range opts {
		o(rc)
	}

	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: rc}, nil
}

func (c *Client) Submit(ctx context.Context, in *SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/anchors", in, &out); err != nil {
		return nil, err
	}
	if out.AnchorID == "" {
		return nil, errors.Wrap(ErrAnchorService, "response has no anchor_id")
	}

	return &out, nil
}

func (c *Client) Status(ctx context.Context, anchorID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/anchors/"+url.PathEscape(anchorID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrAnchorService, "%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrAnchorService, "%s %s: status %d", method, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode anchor service response")
	}

	return nil
}

// Tracker records submitted anchors and refreshes pending ones.
type Tracker struct {
	client *Client
	store  *BlobStore
	clock  time2.Clock
}

func NewTracker(client *Client, store *BlobStore, clock time2.Clock) *Tracker {
	return &Tracker{client: client, store: store, clock: clock}
}

// Submit sends the root and stores a pending anchor record.
func (t *Tracker) Submit(ctx context.Context, in *SubmitRequest) (*SubmitResponse, error) {
	res, err := t.client.Submit(ctx, in)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now().UTC()
	a := &Anchor{
		ID:          res.AnchorID,
		PeriodStart: in.PeriodStart.UTC(),
		PeriodEnd:   in.PeriodEnd.UTC(),
		Status:      StatusPending,
		MerkleRoot:  in.MerkleRoot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.PutAnchor(ctx, a); err != nil {
		return res, errors.Wrapf(err, "anchor %s submitted but not recorded", a.ID)
	}

	return res, nil
}

// RefreshResult counts the outcome of one refresh pass.
type RefreshResult struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// Refresh polls the service for every pending anchor since the given time.
// Terminal anchors are left untouched.
func (t *Tracker) Refresh(ctx context.Context, since time.Time) (*RefreshResult, error) {
	anchors, err := t.store.ListAnchors(ctx, since)
	if err != nil {
		return nil, err
	}

	res := &RefreshResult{}
	for _, a := range anchors {
		if a.Status != StatusPending {
			continue
		}
		res.Checked++

		st, err := t.client.Status(ctx, a.ID)
		if err != nil {
			res.Errors++
			log.Warn().Err(err).Str("anchor_id", a.ID).Msg("Failed to refresh anchor status")
			continue
		}
		if st.Status == StatusPending {
			continue
		}

		a.Status = st.Status
		a.TxHash = st.TxHash
		a.UpdatedAt = t.clock.Now().UTC()
		if err := t.store.PutAnchor(ctx, a); err != nil {
			res.Errors++
			log.Warn().Err(err).Str("anchor_id", a.ID).Msg("Failed to store anchor status")
			continue
		}

		switch st.Status {
		case StatusConfirmed:
			res.Confirmed++
		case StatusFailed:
			res.Failed++
		}
	}

	return res, nil
}
