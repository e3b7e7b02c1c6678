// Package catalog holds the static registry of tools the chat service can
// offer to a turn. Entries carry display metadata for the client, the stdio
// launch specification for the tool's backing process, and the advisory
// system-prompt fragment that tells the model how to treat the tool's
// output.
//
// The slice order of the registry is significant: tool clients are
// provisioned in declaration order regardless of the order identifiers
// appear in a request.
package catalog

import (
	"os"

	"github.com/relaychat/relay/internal/config"
)

// Tool identifiers known to the registry.
const (
	Weather   = "weather"
	Ecommerce = "ecommerce"
)

// Entry describes one tool in the registry.
type Entry struct {
	// ID is the stable identifier clients select tools by.
	ID string `json:"id"`

	// Name and Description are display metadata for the tool picker.
	Name        string `json:"name"`
	Description string `json:"description"`

	// Icon names the client-side icon for this tool.
	Icon string `json:"icon"`

	// Command and Args launch the tool's backing MCP server over stdio.
	Command string `json:"-"`
	Args    []string `json:"-"`

	// Advisory is appended to the system prompt when this tool is active.
	Advisory string `json:"-"`
}

const weatherAdvisory = `The weather tool provides forecast and alert operations that return HTML content you should show to the user.`

const ecommerceAdvisory = `The e-commerce tool provides operations to browse and search products. All operations return HTML that you should display to the user.
The store has several product categories including: Audio, Electronics, Home & Kitchen, Sports & Outdoors, Home & Office, and Home & Garden.
When using these operations, focus on helping users find products based on their needs rather than describing what you see in the HTML output.`

// Registry is the ordered set of known tools. A Registry is immutable after
// construction.
type Registry struct {
	entries []Entry
	byID    map[string]int
}

// New builds the default registry. Launch commands default to re-executing
// the current binary with "mcp <id>"; cfg.Tools entries override per tool.
func New(cfg *config.Config) *Registry {
	self, err := os.Executable()
	if err != nil {
		// Fall back to PATH lookup; exec will fail loudly if absent.
		self = "relay"
	}

	entries := []Entry{
		{
			ID:          Weather,
			Name:        "Weather",
			Description: "Get the weather forecast and alerts for a location",
			Icon:        "cloud",
			Command:     self,
			Args:        []string{"mcp", Weather},
			Advisory:    weatherAdvisory,
		},
		{
			ID:          Ecommerce,
			Name:        "Products",
			Description: "Browse and search the product catalog",
			Icon:        "shopping-bag",
			Command:     self,
			Args:        []string{"mcp", Ecommerce},
			Advisory:    ecommerceAdvisory,
		},
	}

	if cfg != nil {
		for i := range entries {
			if override, ok := cfg.Tools[entries[i].ID]; ok && override.Command != "" {
				entries[i].Command = override.Command
				entries[i].Args = override.Args
			}
		}
	}

	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}
	return &Registry{entries: entries, byID: byID}
}

// All returns the entries in declaration order. Callers must not modify the
// returned slice.
func (r *Registry) All() []Entry {
	return r.entries
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}
