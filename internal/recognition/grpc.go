package recognition

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/resilience"
)

const (
	// ServiceName is the gRPC service the model server registers
	ServiceName = "lipread.v1.Recognizer"
	// RecognizeMethod takes google.protobuf.Struct {video_path} and returns {text}
	RecognizeMethod = "/" + ServiceName + "/Recognize"
)

// GRPCRecognizer calls a model server over gRPC. The server reads the clip
// from video_path, so both processes must share the clip directory.
type GRPCRecognizer struct {
	addr   string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewGRPCRecognizer creates a client for the model server at addr.
// The connection is established lazily on the first call.
func NewGRPCRecognizer(addr string, opts ...grpc.DialOption) (*GRPCRecognizer, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Keepalive settings for long-lived connections
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer client for %s: %w", addr, err)
	}
	return &GRPCRecognizer{
		addr:   addr,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Recognize asks the server to transcribe videoPath
func (r *GRPCRecognizer) Recognize(ctx context.Context, videoPath string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"video_path": videoPath})
	if err != nil {
		return "", fmt.Errorf("build recognize request: %w", err)
	}
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-correlation-id", id)
	}

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, RecognizeMethod, req, resp); err != nil {
		if isRetryableCode(status.Code(err)) {
			return "", resilience.NewRetryableError(fmt.Errorf("recognize call failed: %w", err))
		}
		return "", fmt.Errorf("recognize call failed: %w", err)
	}
	return resp.GetFields()["text"].GetStringValue(), nil
}

func isRetryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// HealthCheck queries grpc.health.v1 for the recognizer service
func (r *GRPCRecognizer) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return false, fmt.Errorf("recognizer at %s is %s", r.addr, resp.GetStatus())
	}
	return true, nil
}

// Close closes the gRPC connection
func (r *GRPCRecognizer) Close() error {
	return r.conn.Close()
}
