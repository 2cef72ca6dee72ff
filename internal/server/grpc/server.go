// Package grpc exposes the record core over gRPC. Messages are JSON encoded
// with a registered codec, so no generated stubs are involved.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/access"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// Sessions is the part of the session manager the transport needs.
type Sessions interface {
	IssueSession(ctx context.Context, userID, password string) (string, *models.Session, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, token string) error
}

type GRPCServer struct {
	address  string
	gate     *access.Gate
	sessions Sessions
	logger   logging.Logger
	retry    retry.Policy
}

var _ PattermServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, gate *access.Gate, sessions Sessions, policy retry.Policy) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		gate:     gate,
		sessions: sessions,
		retry:    policy,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.errorInterceptor, s.sessionTokenInterceptor))
	RegisterPattermServer(srv, s)
	return srv
}

// Run listens on the configured address until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}
