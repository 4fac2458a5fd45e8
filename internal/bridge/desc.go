package bridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type recorderServer interface {
	startRecording(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	stopRecording(context.Context, *emptypb.Empty) (*structpb.Value, error)
	pauseRecording(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	getDecibel(context.Context, *emptypb.Empty) (*wrapperspb.DoubleValue, error)
	checkHasPermission(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*recorderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodStartRecording, Handler: unary(methodStartRecording, func(s recorderServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.startRecording(ctx, in)
		})},
		{MethodName: methodStopRecording, Handler: unary(methodStopRecording, func(s recorderServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.stopRecording(ctx, in)
		})},
		{MethodName: methodPauseRecording, Handler: unary(methodPauseRecording, func(s recorderServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.pauseRecording(ctx, in)
		})},
		{MethodName: methodGetDecibel, Handler: unary(methodGetDecibel, func(s recorderServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.getDecibel(ctx, in)
		})},
		{MethodName: methodCheckHasPermission, Handler: unary(methodCheckHasPermission, func(s recorderServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.checkHasPermission(ctx, in)
		})},
		{MethodName: methodStatus, Handler: unary(methodStatus, func(s recorderServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.status(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "waveform/bridge/v1/recorder.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds a method handler that decodes In and runs the interceptor chain.
func unary[In any](method string, fn func(recorderServer, context.Context, *In) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(recorderServer)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*In))
		})
	}
}
