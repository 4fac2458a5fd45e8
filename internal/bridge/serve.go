package bridge

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
)

// Serve runs srv on listener until ctx is cancelled, then drains in-flight
// calls.
func Serve(ctx context.Context, listener net.Listener, srv *grpc.Server) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		srv.GracefulStop()
	}()

	err := srv.Serve(listener)
	if ctx.Err() != nil {
		<-stopped
	}
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
