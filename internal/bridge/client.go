package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// StartArgs are the optional host arguments of StartRecording. Zero values
// are omitted from the request.
type StartArgs struct {
	Path           string
	Encoder        *int
	SampleRate     int
	FileNameFormat string
}

// StatusReply is the decoded Status response.
type StatusReply struct {
	State       string
	Path        string
	RecordingID string
	Permission  string
	Codec       string
	SampleRate  int
	PeakPower   float64
	StartedAt   time.Time
}

// Client calls the owner process over its unix socket.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial connects to the owner at path and waits until the channel is ready.
func Dial(ctx context.Context, path string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("create bridge client: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// StartRecording asks the owner to begin a recording.
func (c *Client) StartRecording(ctx context.Context, args StartArgs) (bool, error) {
	fields := map[string]*structpb.Value{}
	if args.Path != "" {
		fields["path"] = structpb.NewStringValue(args.Path)
	}
	if args.Encoder != nil {
		fields["encoder"] = structpb.NewNumberValue(float64(*args.Encoder))
	}
	if args.SampleRate > 0 {
		fields["sampleRate"] = structpb.NewNumberValue(float64(args.SampleRate))
	}
	if args.FileNameFormat != "" {
		fields["fileNameFormat"] = structpb.NewStringValue(args.FileNameFormat)
	}

	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, methodStartRecording, &structpb.Struct{Fields: fields}, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// StopRecording returns the output path, or ok=false when the owner replied null.
func (c *Client) StopRecording(ctx context.Context) (path string, ok bool, err error) {
	out := new(structpb.Value)
	if err := c.invoke(ctx, methodStopRecording, &emptypb.Empty{}, out); err != nil {
		return "", false, err
	}
	if v, isString := out.GetKind().(*structpb.Value_StringValue); isString {
		return v.StringValue, true, nil
	}
	return "", false, nil
}

// PauseRecording pauses the owner's recorder. The owner always replies false.
func (c *Client) PauseRecording(ctx context.Context) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, methodPauseRecording, &emptypb.Empty{}, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// GetDecibel returns the current average input level in dBFS.
func (c *Client) GetDecibel(ctx context.Context) (float64, error) {
	out := new(wrapperspb.DoubleValue)
	if err := c.invoke(ctx, methodGetDecibel, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// CheckHasPermission reports whether recording is allowed.
func (c *Client) CheckHasPermission(ctx context.Context) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, methodCheckHasPermission, &emptypb.Empty{}, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Status returns the owner's session snapshot.
func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return StatusReply{}, err
	}

	fields := out.GetFields()
	reply := StatusReply{
		State:       stringField(fields, "state"),
		Path:        stringField(fields, "path"),
		RecordingID: stringField(fields, "recordingId"),
		Permission:  stringField(fields, "permission"),
		Codec:       stringField(fields, "codec"),
		SampleRate:  intField(fields, "sampleRate"),
		PeakPower:   fields["peakPower"].GetNumberValue(),
	}
	if raw := stringField(fields, "startedAt"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			reply.StartedAt = ts
		}
	}
	return reply, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
