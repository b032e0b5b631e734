// Package grpcconn factors a respool.Config suitable for pooling
// *grpc.ClientConn connections, demonstrating the factory/health/closer
// contract against a long-lived streaming resource rather than the
// request/response shape respool/backend/redis exercises.
package grpcconn

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tsurugi-dev/respool"
)

// Options configures Config.
type Options struct {
	Target string

	// DialOpts are appended after the package's own insecure-transport
	// default; pass grpc.WithTransportCredentials to override it.
	DialOpts []grpc.DialOption
}

// Config returns a respool.Config whose Fun, Health, and Closer hooks are
// wired against *grpc.ClientConn.
func Config(opts Options) respool.Config {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts.DialOpts...)

	return respool.Config{
		Fun: func(id int64) (any, error) {
			conn, err := grpc.NewClient(opts.Target, dialOpts...)
			if err != nil {
				return nil, fmt.Errorf("grpcconn backend: dial %s: %w", opts.Target, err)
			}
			return conn, nil
		},

		Health: func(obj any) bool {
			conn := obj.(*grpc.ClientConn)
			switch conn.GetState() {
			case connectivity.Shutdown, connectivity.TransientFailure:
				return false
			default:
				conn.Connect()
				return true
			}
		},

		Closer: func(obj any) {
			obj.(*grpc.ClientConn).Close()
		},
	}
}
