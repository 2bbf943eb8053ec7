package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/router"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the verification, anchoring and key lifecycle HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serverCmdRun,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func serverCmdRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	s, err := api.InitNewServer(cfg)
	if err != nil {
		return err
	}
	router.Init(s)

	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Str("address", cfg.Echo.ListenAddress).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if errs := s.Shutdown(ctx); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
