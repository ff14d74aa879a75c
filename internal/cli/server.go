package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IYouKnow/atlas-probe/internal/metrics"
	"github.com/IYouKnow/atlas-probe/internal/server"
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the local HTTP command bridge",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cfg)
		if err != nil {
			return err
		}

		store, err := getUserStore()
		if err != nil {
			return fmt.Errorf("failed to load user store: %w", err)
		}

		metrics.Register(prometheus.DefaultRegisterer)

		srv := server.New(cfg.Listen, svc, store, server.Options{
			RateLimit: cfg.Server.RateLimit,
			Burst:     cfg.Server.Burst,
		}, logger)

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("bridge failed: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}
		logger.Info("shutting down bridge")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		select {
		case err := <-errc:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		logger.Info("bridge stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("listen", "l", "127.0.0.1:7878", "address to listen on")
	serverCmd.Flags().Float64("rate-limit", 20, "requests per second allowed, 0 disables limiting")
	serverCmd.Flags().Int("burst", 40, "request burst allowed above the rate limit")

	viper.BindPFlag("listen", serverCmd.Flags().Lookup("listen"))
	viper.BindPFlag("server.rate_limit", serverCmd.Flags().Lookup("rate-limit"))
	viper.BindPFlag("server.burst", serverCmd.Flags().Lookup("burst"))
}
