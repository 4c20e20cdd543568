package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"mtu/interfaces"
	"mtu/settings"
	"mtu/util"
)

type setArgs struct {
	Value int `json:"value"`
}

type setCommand struct{ v *fakeViews }

func (c *setCommand) CreateArgs() interfaces.CommandArgs { return &setArgs{} }

func (c *setCommand) Execute(_ context.Context, args interfaces.CommandArgs) error {
	a := args.(*setArgs)
	if a.Value < 0 {
		return &settings.ConfigValidationError{Key: "value", Value: a.Value, Reason: "must not be negative"}
	}
	c.v.mu.Lock()
	c.v.value = a.Value
	vn := c.v.notifier
	c.v.mu.Unlock()
	if vn != nil {
		vn.NotifyView("counter", map[string]int{"value": a.Value})
	}
	return nil
}

type fakeViews struct {
	mu       sync.Mutex
	value    int
	notifier interfaces.ViewNotifier
}

func (v *fakeViews) CommandFor(view, command string) (interfaces.Command, error) {
	if view != "counter" || command != "set" {
		return nil, fmt.Errorf("view=%s,cmd=%s: not found", view, command)
	}
	return &setCommand{v}, nil
}

func (v *fakeViews) NotifyViewTo(n interfaces.ViewNotifier) {
	model, _ := v.GetViewModel("counter")
	n.NotifyView("counter", model)
}

func (v *fakeViews) GetViewModel(view string) (interface{}, bool) {
	if view != "counter" {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return map[string]int{"value": v.value}, true
}

func (v *fakeViews) Views() []string { return []string{"counter"} }

func newTestClient(t *testing.T) (*Client, *fakeViews) {
	t.Helper()
	log := util.NewTestingLogger(t)

	views := &fakeViews{}
	srv := NewServer(views, log)
	views.notifier = srv

	lis := bufconn.Listen(1 << 20)
	gs, errc := srv.Serve(lis)
	t.Cleanup(func() {
		gs.Stop()
		<-errc
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, views
}

func TestServer_GetView(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	b, err := c.View(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"value":0}` {
		t.Fatalf("view = %s", b)
	}

	b, err = c.View(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"counter":{"value":0}}` {
		t.Fatalf("all views = %s", b)
	}

	_, err = c.View(ctx, "nope")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v", status.Code(err))
	}
}

func TestServer_Execute(t *testing.T) {
	c, views := newTestClient(t)
	ctx := context.Background()

	if err := c.Run(ctx, "counter", "set", setArgs{Value: 7}); err != nil {
		t.Fatal(err)
	}
	if model, _ := views.GetViewModel("counter"); model.(map[string]int)["value"] != 7 {
		t.Fatalf("model = %v", model)
	}

	err := c.Run(ctx, "counter", "set", setArgs{Value: -1})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v (%v)", status.Code(err), err)
	}

	err = c.Run(ctx, "counter", "nope", nil)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v", status.Code(err))
	}

	err = c.Run(ctx, "counter", "set", map[string]string{"value": "seven"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v", status.Code(err))
	}
}

func TestServer_Watch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan string, 4)
	go func() {
		_ = c.Follow(ctx, func(view string, model json.RawMessage) error {
			got <- view + " " + string(model)
			return nil
		})
	}()

	expect := func(want string) {
		t.Helper()
		select {
		case s := <-got:
			if s != want {
				t.Fatalf("update = %q, want %q", s, want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	// the current state arrives first:
	expect(`counter {"value":0}`)

	// the watcher is registered before the snapshot is sent:
	if err := c.Run(ctx, "counter", "set", setArgs{Value: 3}); err != nil {
		t.Fatal(err)
	}
	expect(`counter {"value":3}`)
}
