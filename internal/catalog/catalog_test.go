package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/relaychat/relay/internal/config"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	t.Parallel()

	r := New(nil)
	entries := r.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != Weather || entries[1].ID != Ecommerce {
		t.Errorf("order = [%s %s], want weather before ecommerce", entries[0].ID, entries[1].ID)
	}

	for _, e := range entries {
		got, ok := r.Lookup(e.ID)
		if !ok || got.ID != e.ID {
			t.Errorf("Lookup(%q) = %+v, %v", e.ID, got, ok)
		}
		if e.Name == "" || e.Description == "" || e.Icon == "" {
			t.Errorf("entry %q missing display metadata: %+v", e.ID, e)
		}
		if e.Command == "" || len(e.Args) != 2 || e.Args[0] != "mcp" || e.Args[1] != e.ID {
			t.Errorf("entry %q launch spec = %q %v, want self-exec mcp subcommand", e.ID, e.Command, e.Args)
		}
		if e.Advisory == "" {
			t.Errorf("entry %q has no advisory", e.ID)
		}
	}

	if _, ok := r.Lookup("nonsense"); ok {
		t.Error("Lookup accepted an unknown id")
	}
}

func TestRegistryConfigOverride(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Tools: map[string]config.ToolCommand{
			Weather: {Command: "/usr/local/bin/weather-server", Args: []string{"--stdio"}},
		},
	}

	r := New(cfg)
	weather, _ := r.Lookup(Weather)
	if weather.Command != "/usr/local/bin/weather-server" {
		t.Errorf("weather command = %q, want the override", weather.Command)
	}
	if len(weather.Args) != 1 || weather.Args[0] != "--stdio" {
		t.Errorf("weather args = %v, want the override", weather.Args)
	}

	// Entries without an override keep the self-exec default.
	ecommerce, _ := r.Lookup(Ecommerce)
	if len(ecommerce.Args) != 2 || ecommerce.Args[0] != "mcp" {
		t.Errorf("ecommerce launch spec changed without an override: %v", ecommerce.Args)
	}
}

func TestEntryJSONHidesLaunchSpec(t *testing.T) {
	t.Parallel()

	entry, _ := New(nil).Lookup(Weather)
	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	if strings.Contains(s, entry.Command) || strings.Contains(s, "mcp") {
		t.Errorf("serialized entry leaks the launch command: %s", s)
	}
	if strings.Contains(s, "advisory") || strings.Contains(s, "Advisory") {
		t.Errorf("serialized entry leaks the advisory: %s", s)
	}
	if !strings.Contains(s, `"id":"weather"`) {
		t.Errorf("serialized entry missing id: %s", s)
	}
}
