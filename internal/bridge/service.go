// Package bridge exposes the recording session to host processes over gRPC
// on a unix socket.
//
// Messages are protobuf well-known types so hosts can call the service with
// any gRPC stack and no generated stubs.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/waveform/internal/recorder"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "waveform.bridge.v1.Recorder"

const (
	methodStartRecording     = "StartRecording"
	methodStopRecording      = "StopRecording"
	methodPauseRecording     = "PauseRecording"
	methodGetDecibel         = "GetDecibel"
	methodCheckHasPermission = "CheckHasPermission"
	methodStatus             = "Status"
)

// StartFailedMessage is the only error text a host ever sees.
const StartFailedMessage = "Failed to start recording"

// Session is the recording surface served over the bridge.
type Session interface {
	Start(context.Context, recorder.StartOptions) error
	Stop(context.Context) string
	Pause(context.Context) bool
	Decibel(context.Context) float64
	CheckPermission(context.Context) bool
	Status() recorder.Status
}

type service struct {
	session Session
}

// NewServer builds a gRPC server with logging and panic recovery
// interceptors, serving session.
func NewServer(logger *slog.Logger, session Session) *grpc.Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(interceptorLogger(logger),
				logging.WithLogOnEvents(logging.FinishCall),
			),
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(func(p any) error {
				logger.Error("bridge handler panic", "panic", fmt.Sprint(p))
				return status.Error(codes.Internal, "internal error")
			})),
		),
	)
	srv.RegisterService(&serviceDesc, &service{session: session})
	return srv
}

// interceptorLogger adapts slog to the middleware logger contract.
func interceptorLogger(logger *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		logger.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

func (s *service) startRecording(ctx context.Context, args *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := s.session.Start(ctx, startOptionsFromStruct(args)); err != nil {
		// The cause is logged by the session; hosts only get the fixed message.
		return nil, status.Error(codes.Unknown, StartFailedMessage)
	}
	return wrapperspb.Bool(true), nil
}

func (s *service) stopRecording(ctx context.Context, _ *emptypb.Empty) (*structpb.Value, error) {
	path := s.session.Stop(ctx)
	if path == "" {
		return structpb.NewNullValue(), nil
	}
	return structpb.NewStringValue(path), nil
}

func (s *service) pauseRecording(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.session.Pause(ctx)), nil
}

func (s *service) getDecibel(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.DoubleValue, error) {
	return wrapperspb.Double(s.session.Decibel(ctx)), nil
}

func (s *service) checkHasPermission(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.session.CheckPermission(ctx)), nil
}

func (s *service) status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return statusToStruct(s.session.Status()), nil
}

// startOptionsFromStruct reads host arguments. Missing, null, or mistyped
// fields count as not provided.
func startOptionsFromStruct(args *structpb.Struct) recorder.StartOptions {
	fields := args.GetFields()
	return recorder.StartOptions{
		Path:           stringField(fields, "path"),
		Encoder:        intField(fields, "encoder"),
		SampleRate:     intField(fields, "sampleRate"),
		FileNameFormat: stringField(fields, "fileNameFormat"),
	}
}

func stringField(fields map[string]*structpb.Value, key string) string {
	if v, ok := fields[key].GetKind().(*structpb.Value_StringValue); ok {
		return v.StringValue
	}
	return ""
}

// intField reads a whole number within int32 range. Fractions, NaN and
// out-of-range values count as not provided.
func intField(fields map[string]*structpb.Value, key string) int {
	v, ok := fields[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0
	}
	n := v.NumberValue
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

func statusToStruct(st recorder.Status) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"state":      structpb.NewStringValue(string(st.State)),
		"path":       structpb.NewStringValue(st.Path),
		"permission": structpb.NewStringValue(st.Permission.String()),
	}
	if st.RecordingID != "" {
		fields["recordingId"] = structpb.NewStringValue(st.RecordingID)
		fields["startedAt"] = structpb.NewStringValue(st.StartedAt.UTC().Format(time.RFC3339Nano))
		fields["codec"] = structpb.NewStringValue(st.Codec.Name)
		fields["sampleRate"] = structpb.NewNumberValue(float64(st.SampleRate))
		fields["peakPower"] = structpb.NewNumberValue(st.PeakPower)
	}
	return &structpb.Struct{Fields: fields}
}
