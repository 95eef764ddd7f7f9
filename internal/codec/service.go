package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region descriptor
const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName  = "substitution.Decoder"
	decodeMethod = "/" + ServiceName + "/Decode"
)

// DecoderServer is the server API for the Decoder service. Requests and
// responses travel as google.protobuf.Struct messages.
type DecoderServer interface {
	Decode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDecoderServer registers srv on s.
func RegisterDecoderServer(s grpc.ServiceRegistrar, srv DecoderServer) {
	s.RegisterService(&decoderServiceDesc, srv)
}

var decoderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecoderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decode", Handler: decodeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "substitution/decoder.proto",
}

func decodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecoderServer).Decode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: decodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecoderServer).Decode(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// DecoderServiceClient is the client API for the Decoder service.
type DecoderServiceClient interface {
	Decode(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type decoderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDecoderServiceClient returns a stub calling the Decoder service on cc.
func NewDecoderServiceClient(cc grpc.ClientConnInterface) DecoderServiceClient {
	return &decoderServiceClient{cc: cc}
}

func (c *decoderServiceClient) Decode(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, decodeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion descriptor

// #region messages
// DecodeRequest asks the service to decode one ciphertext.
type DecodeRequest struct {
	Ciphertext    string
	HasBreakpoint bool
	Model         string // configured model name; empty selects the default
}

// DecodeResponse is the service's answer.
type DecodeResponse struct {
	RunID      string
	Plaintext  string
	Breakpoint int
	Score      float64
	Flagged    bool // the server's gate doubts at least one segment
}

func (r DecodeRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ciphertext":     r.Ciphertext,
		"has_breakpoint": r.HasBreakpoint,
		"model":          r.Model,
	})
}

func decodeRequestFrom(s *structpb.Struct) (DecodeRequest, error) {
	var r DecodeRequest
	f := s.GetFields()
	var err error
	if r.Ciphertext, err = stringField(f, "ciphertext", true); err != nil {
		return DecodeRequest{}, err
	}
	if r.Model, err = stringField(f, "model", false); err != nil {
		return DecodeRequest{}, err
	}
	if r.HasBreakpoint, err = boolField(f, "has_breakpoint"); err != nil {
		return DecodeRequest{}, err
	}
	return r, nil
}

func (r DecodeResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"run_id":     r.RunID,
		"plaintext":  r.Plaintext,
		"breakpoint": r.Breakpoint,
		"score":      r.Score,
		"flagged":    r.Flagged,
	})
}

func decodeResponseFrom(s *structpb.Struct) (DecodeResponse, error) {
	var r DecodeResponse
	f := s.GetFields()
	var err error
	if r.Plaintext, err = stringField(f, "plaintext", true); err != nil {
		return DecodeResponse{}, err
	}
	if r.RunID, err = stringField(f, "run_id", false); err != nil {
		return DecodeResponse{}, err
	}
	bp, err := numberField(f, "breakpoint")
	if err != nil {
		return DecodeResponse{}, err
	}
	r.Breakpoint = int(bp)
	if r.Score, err = numberField(f, "score"); err != nil {
		return DecodeResponse{}, err
	}
	if r.Flagged, err = boolField(f, "flagged"); err != nil {
		return DecodeResponse{}, err
	}
	return r, nil
}

func stringField(f map[string]*structpb.Value, name string, required bool) (string, error) {
	v, ok := f[name]
	if !ok {
		if required {
			return "", fmt.Errorf("field %s: missing", name)
		}
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", fmt.Errorf("field %s: want string", name)
	}
	return s.StringValue, nil
}

// boolField reads an optional bool; a missing field is false.
func boolField(f map[string]*structpb.Value, name string) (bool, error) {
	v, ok := f[name]
	if !ok {
		return false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, fmt.Errorf("field %s: want bool", name)
	}
	return b.BoolValue, nil
}

func numberField(f map[string]*structpb.Value, name string) (float64, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("field %s: missing", name)
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, fmt.Errorf("field %s: want number", name)
	}
	return n.NumberValue, nil
}

// #endregion messages
