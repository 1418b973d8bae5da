package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/interfaces/api"
)

const shutdownTimeout = 5 * time.Second

// ServeCommand runs the HTTP intake and export API until the context ends
type ServeCommand struct {
	env  *Environment
	addr string
}

// NewServeCommand creates a new serve command
func NewServeCommand(env *Environment, addr string) *ServeCommand {
	return &ServeCommand{env: env, addr: addr}
}

// Execute serves until ctx is cancelled, then shuts down gracefully
func (c *ServeCommand) Execute(ctx context.Context) error {
	handler, err := api.New(api.Config{
		Workflow: c.env.Workflow,
		Events:   c.env.Events,
		Runs:     c.env.Store,
		Logger:   c.env.Logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.env.Logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	c.env.Logger.Info("serving seasonplan API", zap.String("addr", c.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
