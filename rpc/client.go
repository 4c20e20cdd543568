package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps a ControlClient with JSON friendly helpers.
type Client struct {
	cc *grpc.ClientConn
	ControlClient
}

// Dial connects to a control service without transport security; the
// service is meant to listen on loopback only.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, ControlClient: NewControlClient(cc)}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// View returns the JSON form of one view, or of all views when view is empty.
func (c *Client) View(ctx context.Context, view string) (json.RawMessage, error) {
	req, err := structpb.NewStruct(map[string]interface{}{FieldView: view})
	if err != nil {
		return nil, err
	}
	rsp, err := c.GetView(ctx, req)
	if err != nil {
		return nil, err
	}
	if view != "" {
		return json.Marshal(rsp.GetFields()[view].AsInterface())
	}
	return json.Marshal(rsp.AsMap())
}

// Run executes a command. args is any value that marshals to a JSON object,
// or nil.
func (c *Client) Run(ctx context.Context, view, command string, args interface{}) error {
	fields := map[string]interface{}{
		FieldView:    view,
		FieldCommand: command,
	}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return err
		}
		var generic interface{}
		if err = json.Unmarshal(b, &generic); err != nil {
			return err
		}
		fields[FieldArgs] = generic
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	_, err = c.Execute(ctx, req)
	return err
}

// Follow calls fn for every view update until ctx ends, fn returns an error
// or the server closes the stream.
func (c *Client) Follow(ctx context.Context, fn func(view string, model json.RawMessage) error) error {
	stream, err := c.Watch(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := msg.GetFields()
		model, err := json.Marshal(fields[FieldModel].AsInterface())
		if err != nil {
			return err
		}
		if err = fn(fields[FieldView].GetStringValue(), model); err != nil {
			return err
		}
	}
}
