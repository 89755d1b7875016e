package main

import (
	"context"
	"fmt"

	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chart tabs as MCP tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateFHIR(); err != nil {
			return err
		}

		token, err := obtainToken(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		cfg.FHIR.AccessToken = token.AccessToken
		if cfg.FHIR.PatientID == "" {
			cfg.FHIR.PatientID = token.Patient
		}

		return runServer(cmd.Context(), cfg)
	},
}

// newApp wires the FHIR client and the MCP server for cfg.
func newApp(cfg *config.Config, opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(cfg, &cfg.FHIR),
		fhir.Module,
		server.Module,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger()}
		}),
		fx.Invoke(registerServer),
		fx.Options(opts...),
	)
}

// registerServer runs the server for the lifetime of the app and shuts the
// app down when the server stops on its own.
func registerServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *server.Server) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				exitCode := 0
				if err := srv.Start(ctx); err != nil {
					logger.Error("Server stopped", zap.Error(err))
					exitCode = 1
				}
				_ = shutdowner.Shutdown(fx.ExitCode(exitCode))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runServer(ctx context.Context, cfg *config.Config) error {
	app := newApp(cfg)
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	var exitCode int
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		exitCode = sig.ExitCode
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("server stopped with exit code %d", exitCode)
	}
	return nil
}
