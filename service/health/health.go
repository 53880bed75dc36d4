package health

import (
	"net"

	"PGateway/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported next to the overall ("") status.
const ServiceName = "gateway.Gateway"

// Server is a gRPC server exposing only the standard health service.
type Server struct {
	addr string
	log  *zap.Logger
	gs   *grpc.Server
	hs   *health.Server
	lis  net.Listener
}

func New(addr string, log *zap.Logger) *Server {
	return &Server{addr: addr, log: logger.Or(log), hs: health.NewServer()}
}

// Start binds the listener and serves in the background. Status starts as
// NOT_SERVING until SetServing(true).
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "health listen %s", s.addr)
	}
	s.lis = lis
	s.gs = grpc.NewServer()
	healthpb.RegisterHealthServer(s.gs, s.hs)
	s.SetServing(false)

	go func() {
		if err := s.gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("health server failed", zap.Error(err))
		}
	}()
	s.log.Info("health listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
}

// Stop flips every status to NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.hs.Shutdown()
	if s.gs != nil {
		s.gs.GracefulStop()
	}
}
