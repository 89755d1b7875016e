// Package server exposes the patient chart as an MCP (Model Context Protocol)
// server over stdio, SSE or streamable HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/brizzai/fhir-chart/internal/chart"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/server/handler"
	"github.com/brizzai/fhir-chart/internal/server/tool"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// shutdownTimeout is the maximum time to wait for server shutdown
	shutdownTimeout = 5 * time.Second
)

// Server serves the chart tools in the configured mode.
type Server struct {
	config  *config.Config
	mcp     *mcpserver.MCPServer
	handler *handler.Handler
	tool    *tool.Handler

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates the MCP server and registers the chart tools.
func NewServer(cfg *config.Config, fetcher chart.Fetcher) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}

	srv := &Server{
		config:  cfg,
		mcp:     mcpserver.NewMCPServer(cfg.Server.Name, cfg.Server.Version, mcpserver.WithToolCapabilities(false)),
		handler: handler.NewHandler(&cfg.Server),
		tool:    tool.NewHandler(fetcher, cfg.FHIR.PatientID),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}

	tools := srv.tool.Tools()
	for _, t := range tools {
		logger.Debug("Adding tool", zap.String("name", t.Tool.Name))
	}
	srv.mcp.AddTools(tools...)

	return srv, nil
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
}

func (s *Server) ServeSSE(ctx context.Context) error {
	logger.Info("Starting SSE server")
	sseServer := mcpserver.NewSSEServer(
		s.mcp,
		mcpserver.WithBaseURL("http://"+s.addr()),
	)
	return s.serveHTTP(ctx, sseServer, "SSE")
}

func (s *Server) ServeHTTP(ctx context.Context) error {
	logger.Info("Starting HTTP server")
	httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
	return s.serveHTTP(ctx, httpServer, "HTTP")
}

func (s *Server) serveHTTP(ctx context.Context, h http.Handler, mode string) error {
	addr := s.addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler.CreateHTTPHandler(h),
		ReadHeaderTimeout: 10 * time.Second,
		// streaming handlers end with the server context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("mode", mode),
			zap.String("address", addr),
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server",
			zap.String("mode", mode),
			zap.Duration("timeout", shutdownTimeout),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

func (s *Server) ServeSTDIO(ctx context.Context) error {
	logger.Info("Starting STDIO server")
	stdioServer := mcpserver.NewStdioServer(s.mcp)
	err := stdioServer.Listen(ctx, s.stdin, s.stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start starts the server in the configured mode (SSE, HTTP, or STDIO).
// It blocks until ctx is canceled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	logger.Info("Starting server",
		zap.String("mode", string(s.config.Server.Mode)),
		zap.String("version", s.config.Server.Version),
	)

	switch s.config.Server.Mode {
	case config.ServerModeSSE:
		return s.ServeSSE(ctx)
	case config.ServerModeHTTP:
		return s.ServeHTTP(ctx)
	case config.ServerModeSTDIO:
		return s.ServeSTDIO(ctx)
	default:
		return fmt.Errorf("unsupported server mode: %s", s.config.Server.Mode)
	}
}

func asFetcher(c *fhir.Client) chart.Fetcher {
	return c
}

// Module provides the MCP server dependencies
var Module = fx.Module("mcp_server",
	fx.Provide(
		asFetcher,
		NewServer,
	),
)
