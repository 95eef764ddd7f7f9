package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// #region client-struct
// DecoderClient wraps the gRPC connection to a decoder service.
type DecoderClient struct {
	conn   *grpc.ClientConn
	client DecoderServiceClient
}

// #endregion client-struct

// #region constructor
// NewDecoderClient connects to the decoder gRPC server. Extra options are
// appended after the insecure transport credentials.
func NewDecoderClient(addr string, opts ...grpc.DialOption) (*DecoderClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &DecoderClient{
		conn:   conn,
		client: NewDecoderServiceClient(conn),
	}, nil
}

// NewDecoderClientWithService creates a DecoderClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewDecoderClientWithService(svc DecoderServiceClient) *DecoderClient {
	return &DecoderClient{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *DecoderClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region decode
// Decode sends a ciphertext to the decoder service.
func (c *DecoderClient) Decode(ctx context.Context, req DecodeRequest) (DecodeResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return DecodeResponse{}, fmt.Errorf("encode request: %w", err)
	}
	out, err := c.client.Decode(ctx, in)
	if err != nil {
		return DecodeResponse{}, fmt.Errorf("decode rpc: %w", err)
	}
	resp, err := decodeResponseFrom(out)
	if err != nil {
		return DecodeResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// #endregion decode
