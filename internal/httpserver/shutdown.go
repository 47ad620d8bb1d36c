package httpserver

import (
	"context"
	"errors"
	"time"
)

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Closer releases a dependency during shutdown.
type Closer func(ctx context.Context) error

// Drain stops the server, then runs closers in order within one
// ShutdownTimeout budget. All closers run; their errors are joined.
func Drain(srv *Server, closers ...Closer) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
