package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/rpc"
	"github.com/dmitrijs2005/tripkeeper/internal/server/services"
	"google.golang.org/grpc"
)

// RecordService is the business API behind the gRPC handlers.
type RecordService interface {
	Create(ctx context.Context, userID, collection, key string, payload map[string]any) (string, error)
	Update(ctx context.Context, userID, collection, id string, payload map[string]any) error
	Delete(ctx context.Context, userID, collection, id string) error
	PresignUpload(ctx context.Context, userID, folder, contentType string) (services.Upload, error)
	DeleteBlob(ctx context.Context, userID, path string) error
}

type GRPCServer struct {
	address   string
	records   RecordService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, rs RecordService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		records:   rs,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterRecordsServer(srv, s)
	return srv
}

// Run serves on the configured address until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
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
