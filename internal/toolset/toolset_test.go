package toolset

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/relaychat/relay/internal/catalog"
	"github.com/relaychat/relay/internal/log"
)

// testTool defines a named tool against a throwaway Genkit instance.
func testTool(g *genkit.Genkit, name string) ai.Tool {
	return genkit.DefineTool(g, name, "test tool",
		func(ctx *ai.ToolContext, _ struct{}) (string, error) {
			return "", nil
		})
}

type connectLog struct {
	connected []string
	closed    []string
}

func newTestProvisioner(t *testing.T, connect connectFunc) (*Provisioner, *connectLog) {
	t.Helper()
	g := genkit.Init(context.Background())
	p := New(g, catalog.New(nil), log.NewNop())
	calls := &connectLog{}
	p.connect = func(ctx context.Context, g *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		calls.connected = append(calls.connected, entry.ID)
		return connect(ctx, g, entry)
	}
	return p, calls
}

func TestProvisionFollowsCatalogOrder(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	tools := map[string]ai.Tool{
		catalog.Weather:   testTool(g, "get-forecast"),
		catalog.Ecommerce: testTool(g, "list-products"),
	}

	p, calls := newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		return []ai.Tool{tools[entry.ID]}, nil, nil
	})

	// Request order is reversed relative to the catalog.
	handles, err := p.Provision(context.Background(), []string{catalog.Ecommerce, catalog.Weather})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("handles = %d, want 2", len(handles))
	}
	if handles[0].ID != catalog.Weather || handles[1].ID != catalog.Ecommerce {
		t.Errorf("handle order = [%s %s], want catalog order", handles[0].ID, handles[1].ID)
	}
	if len(calls.connected) != 2 || calls.connected[0] != catalog.Weather {
		t.Errorf("connect order = %v, want catalog order", calls.connected)
	}
	if handles[0].Advisory == "" {
		t.Error("handle lost its advisory")
	}
}

func TestProvisionIgnoresUnknownIDs(t *testing.T) {
	t.Parallel()

	p, calls := newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, _ catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		return nil, nil, nil
	})

	handles, err := p.Provision(context.Background(), []string{"nonsense", catalog.Weather})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if len(handles) != 1 || handles[0].ID != catalog.Weather {
		t.Errorf("handles = %v, want weather only", handles)
	}
	if len(calls.connected) != 1 {
		t.Errorf("connects = %v, want the known id only", calls.connected)
	}
}

func TestProvisionEmptySelection(t *testing.T) {
	t.Parallel()

	p, calls := newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, _ catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		return nil, nil, nil
	})

	handles, err := p.Provision(context.Background(), nil)
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if len(handles) != 0 || len(calls.connected) != 0 {
		t.Errorf("empty selection opened connections: %v", calls.connected)
	}
}

func TestProvisionFailureClosesOpenedHandles(t *testing.T) {
	t.Parallel()

	connectErr := errors.New("spawn failed")
	var p *Provisioner
	var calls *connectLog
	p, calls = newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		if entry.ID == catalog.Ecommerce {
			return nil, nil, connectErr
		}
		id := entry.ID
		return nil, func(context.Context) error {
			calls.closed = append(calls.closed, id)
			return nil
		}, nil
	})

	handles, err := p.Provision(context.Background(), []string{catalog.Weather, catalog.Ecommerce})
	if !errors.Is(err, ErrProvision) {
		t.Fatalf("Provision() error = %v, want ErrProvision", err)
	}
	if !errors.Is(err, connectErr) {
		t.Errorf("Provision() error = %v, want the cause wrapped", err)
	}
	if handles != nil {
		t.Errorf("handles = %v, want none on failure", handles)
	}
	if len(calls.closed) != 1 || calls.closed[0] != catalog.Weather {
		t.Errorf("closed = %v, want the already-opened handle", calls.closed)
	}
}

func TestProvisionRejectsOperationNameCollision(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	shared := testTool(g, "get-forecast")

	var p *Provisioner
	var calls *connectLog
	p, calls = newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		id := entry.ID
		return []ai.Tool{shared}, func(context.Context) error {
			calls.closed = append(calls.closed, id)
			return nil
		}, nil
	})

	_, err := p.Provision(context.Background(), []string{catalog.Weather, catalog.Ecommerce})
	if !errors.Is(err, ErrProvision) {
		t.Fatalf("Provision() error = %v, want ErrProvision", err)
	}
	if len(calls.closed) != 2 {
		t.Errorf("closed = %v, want both handles released", calls.closed)
	}
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	var p *Provisioner
	var calls *connectLog
	p, calls = newTestProvisioner(t, func(_ context.Context, _ *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
		id := entry.ID
		return nil, func(context.Context) error {
			calls.closed = append(calls.closed, id)
			return nil
		}, nil
	})

	handles, err := p.Provision(context.Background(), []string{catalog.Weather, catalog.Ecommerce})
	if err != nil {
		t.Fatal(err)
	}

	p.CloseAll(context.Background(), handles)
	if len(calls.closed) != 2 {
		t.Errorf("closed = %v, want every handle", calls.closed)
	}

	// A handle with no closer is a no-op.
	if err := (&Handle{ID: "bare"}).Close(context.Background()); err != nil {
		t.Errorf("Close() on bare handle = %v", err)
	}
}
