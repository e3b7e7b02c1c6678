// Package toolset turns a session's selected tool identifiers into live
// MCP connections whose tools can be handed to the model.
package toolset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/mcp"

	"github.com/relaychat/relay/internal/catalog"
)

// ErrProvision marks a failure to launch or handshake a selected tool.
// The turn must not proceed with a partial toolset.
var ErrProvision = errors.New("tool provisioning failed")

// Handle is one live tool connection. Close releases the underlying
// server process; handles are per-turn and never shared across requests.
type Handle struct {
	ID       string
	Advisory string
	Tools    []ai.Tool

	close func(context.Context) error
}

// Close disconnects the tool's server.
func (h *Handle) Close(ctx context.Context) error {
	if h.close == nil {
		return nil
	}
	return h.close(ctx)
}

// connectFunc is the seam tests replace to avoid spawning real processes.
type connectFunc func(ctx context.Context, g *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error)

// Provisioner opens MCP connections for catalog entries.
type Provisioner struct {
	g        *genkit.Genkit
	registry *catalog.Registry
	logger   *slog.Logger
	connect  connectFunc
}

// New creates a Provisioner backed by stdio MCP hosts.
func New(g *genkit.Genkit, registry *catalog.Registry, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		g:        g,
		registry: registry,
		logger:   logger,
		connect:  connectStdio,
	}
}

// Provision opens a handle per selected identifier, in catalog order.
// Identifiers not in the catalog are ignored. Any single failure closes
// the handles already opened and fails the whole provisioning, as does a
// tool operation name claimed by two entries.
func (p *Provisioner) Provision(ctx context.Context, ids []string) ([]*Handle, error) {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := p.registry.Lookup(id); ok {
			selected[id] = true
		} else {
			p.logger.Warn("ignoring unknown tool id", "tool_id", id)
		}
	}

	var handles []*Handle
	owners := make(map[string]string) // operation name -> tool id

	fail := func(err error) ([]*Handle, error) {
		for _, h := range handles {
			if cerr := h.Close(ctx); cerr != nil {
				p.logger.Warn("closing tool after failed provisioning",
					"tool_id", h.ID, "error", cerr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	for _, entry := range p.registry.All() {
		if !selected[entry.ID] {
			continue
		}

		tools, closer, err := p.connect(ctx, p.g, entry)
		if err != nil {
			return fail(fmt.Errorf("connect %s: %w", entry.ID, err))
		}
		h := &Handle{
			ID:       entry.ID,
			Advisory: entry.Advisory,
			Tools:    tools,
			close:    closer,
		}
		handles = append(handles, h)

		for _, t := range tools {
			name := t.Name()
			if other, taken := owners[name]; taken {
				return fail(fmt.Errorf("operation %q exposed by both %s and %s", name, other, entry.ID))
			}
			owners[name] = entry.ID
		}
		p.logger.Debug("provisioned tool", "tool_id", entry.ID, "operations", len(tools))
	}

	return handles, nil
}

// CloseAll closes every handle, logging rather than failing on errors.
func (p *Provisioner) CloseAll(ctx context.Context, handles []*Handle) {
	for _, h := range handles {
		if err := h.Close(ctx); err != nil {
			p.logger.Warn("closing tool", "tool_id", h.ID, "error", err)
		}
	}
}

// connectStdio launches the entry's server over stdio. Each entry gets its
// own host so one tool's lifecycle never disturbs another's.
func connectStdio(ctx context.Context, g *genkit.Genkit, entry catalog.Entry) ([]ai.Tool, func(context.Context) error, error) {
	host, err := mcp.NewMCPHost(g, mcp.MCPHostOptions{
		Name:    "relay-" + entry.ID,
		Version: "1.0.0",
		MCPServers: []mcp.MCPServerConfig{{
			Name: entry.ID,
			Config: mcp.MCPClientOptions{
				Name: entry.ID,
				Stdio: &mcp.StdioConfig{
					Command: entry.Command,
					Args:    entry.Args,
				},
			},
		}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create MCP host: %w", err)
	}

	tools, err := host.GetActiveTools(ctx, g)
	if err != nil {
		_ = host.Disconnect(ctx, entry.ID)
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}

	closer := func(ctx context.Context) error {
		return host.Disconnect(ctx, entry.ID)
	}
	return tools, closer, nil
}
