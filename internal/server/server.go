// Package server exposes the HTTP API: creating report runs, streaming
// their progress over SSE, and reading sessions and archived reports.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/pressbox/internal/progress"
	"github.com/zulandar/pressbox/internal/session"
	"gorm.io/gorm"
)

// Runner is the pipeline surface the server drives.
type Runner interface {
	CreateSession(ctx context.Context, fixtureID string) (*session.Session, error)
	Run(ctx context.Context, sessionID string, sink progress.Sink) error
	Chat(ctx context.Context, sessionID, question string) (string, error)
}

// Opts holds configuration for the API server.
type Opts struct {
	Runner Runner
	Store  session.Store
	DB     *gorm.DB // archive; nil disables the list endpoint's content
	Port   int
	Out    io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully. Runs started over HTTP are driven on ctx, not the
// request context, so an abandoned stream does not abort its run.
func Start(ctx context.Context, opts Opts) error {
	if opts.Runner == nil || opts.Store == nil {
		return fmt.Errorf("server: runner and store are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	router := newRouter(ctx, opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Pressbox API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// newRouter builds the gin engine. baseCtx is the lifetime runs are bound to.
func newRouter(baseCtx context.Context, opts Opts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{
		runner:  opts.Runner,
		store:   opts.Store,
		db:      opts.DB,
		baseCtx: baseCtx,
	}
	registerRoutes(router, h)
	return router
}
