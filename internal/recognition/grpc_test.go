package recognition

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/resilience"
)

// recognizerServer is the handler shape registered under lipread.v1.Recognizer
type recognizerServer interface {
	Recognize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type fakeModelServer struct {
	reply         func(videoPath string) (*structpb.Struct, error)
	correlationID string
}

func (s *fakeModelServer) Recognize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-correlation-id"); len(v) > 0 {
			s.correlationID = v[0]
		}
	}
	return s.reply(req.GetFields()["video_path"].GetStringValue())
}

var recognizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*recognizerServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Recognize",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			req := &structpb.Struct{}
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(recognizerServer).Recognize(ctx, req)
		},
	}},
}

func startModelServer(t *testing.T, srv *fakeModelServer, serving healthpb.HealthCheckResponse_ServingStatus) *GRPCRecognizer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&recognizerServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, serving)
	healthpb.RegisterHealthServer(server, hs)

	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	r, err := NewGRPCRecognizer("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestGRPCRecognizer_Recognize(t *testing.T) {
	srv := &fakeModelServer{reply: func(path string) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]any{"text": "transcript of " + path})
	}}
	r := startModelServer(t, srv, healthpb.HealthCheckResponse_SERVING)

	ctx := observability.ContextWithCorrelationID(context.Background(), "corr-7")
	text, err := r.Recognize(ctx, "/shared/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "transcript of /shared/clip.mp4", text)
	assert.Equal(t, "corr-7", srv.correlationID)
}

func TestGRPCRecognizer_MissingText(t *testing.T) {
	srv := &fakeModelServer{reply: func(string) (*structpb.Struct, error) {
		return &structpb.Struct{}, nil
	}}
	r := startModelServer(t, srv, healthpb.HealthCheckResponse_SERVING)

	text, err := r.Recognize(context.Background(), "/shared/clip.mp4")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGRPCRecognizer_ErrorClassification(t *testing.T) {
	code := codes.Unavailable
	srv := &fakeModelServer{reply: func(string) (*structpb.Struct, error) {
		return nil, status.Error(code, "model busy")
	}}
	r := startModelServer(t, srv, healthpb.HealthCheckResponse_SERVING)

	_, err := r.Recognize(context.Background(), "/shared/clip.mp4")
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))

	code = codes.InvalidArgument
	_, err = r.Recognize(context.Background(), "/shared/clip.mp4")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCRecognizer_HealthCheck(t *testing.T) {
	srv := &fakeModelServer{reply: func(string) (*structpb.Struct, error) { return &structpb.Struct{}, nil }}

	r := startModelServer(t, srv, healthpb.HealthCheckResponse_SERVING)
	ok, err := r.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	r = startModelServer(t, srv, healthpb.HealthCheckResponse_NOT_SERVING)
	ok, err = r.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
