package prefs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/relaychat/relay/internal/log"
)

func openTestStore(t *testing.T, defaults []string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "prefs.db"), defaults, log.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestGetReturnsDefaultsForUnknownSession(t *testing.T) {
	t.Parallel()

	defaults := []string{"weather", "ecommerce"}
	store := openTestStore(t, defaults)

	got, found, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for session with no durable row")
	}
	if !reflect.DeepEqual(got, defaults) {
		t.Errorf("Get() = %v, want defaults %v", got, defaults)
	}

	// The defaults are reported, never written back.
	got[0] = "mutated"
	again, _, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if !reflect.DeepEqual(again, defaults) {
		t.Errorf("defaults leaked caller mutation: %v", again)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, []string{"weather", "ecommerce"})
	ctx := context.Background()

	tests := []struct {
		name  string
		tools []string
	}{
		{name: "single tool", tools: []string{"weather"}},
		{name: "empty selection", tools: []string{}},
		{name: "both tools", tools: []string{"weather", "ecommerce"}},
	}

	for _, tt := range tests {
		if err := store.Set(ctx, "s1", tt.tools); err != nil {
			t.Fatalf("%s: Set() error = %v", tt.name, err)
		}
		got, found, err := store.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: Get() error = %v", tt.name, err)
		}
		if !found {
			t.Errorf("%s: Get() found = false after Set", tt.name)
		}
		if !reflect.DeepEqual(got, tt.tools) {
			t.Errorf("%s: Get() = %v, want %v", tt.name, got, tt.tools)
		}
	}
}

func TestSelectionsAreIsolatedPerSession(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "s1", []string{"weather"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "s2", []string{"ecommerce"}); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"weather"}) {
		t.Errorf("s1 selection = %v", got)
	}
}

func TestSelectionSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	store, err := Open(path, []string{"weather"}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "s1", []string{"ecommerce"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, []string{"weather"}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, _, err := reopened.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"ecommerce"}) {
		t.Errorf("selection after reopen = %v, want the persisted copy", got)
	}
}

func TestCorruptRowFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	defaults := []string{"weather"}
	store := openTestStore(t, defaults)
	ctx := context.Background()

	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO tool_prefs (session_id, tools, updated_at) VALUES ('s1', 'not-json', CURRENT_TIMESTAMP)`,
	); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v, want corrupt row tolerated", err)
	}
	if found {
		t.Error("Get() found = true for an unusable row")
	}
	if !reflect.DeepEqual(got, defaults) {
		t.Errorf("Get() = %v, want defaults", got)
	}
}

func TestObservers(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, nil)
	ctx := context.Background()

	var notified [][]string
	unsubscribe := store.Subscribe(func(sessionID string, tools []string) {
		if sessionID != "s1" {
			t.Errorf("observer session = %q, want s1", sessionID)
		}
		notified = append(notified, tools)
	})

	if err := store.Set(ctx, "s1", []string{"weather"}); err != nil {
		t.Fatal(err)
	}
	if len(notified) != 1 || !reflect.DeepEqual(notified[0], []string{"weather"}) {
		t.Fatalf("notifications after Set = %v", notified)
	}

	unsubscribe()
	if err := store.Set(ctx, "s1", []string{"ecommerce"}); err != nil {
		t.Fatal(err)
	}
	if len(notified) != 1 {
		t.Errorf("observer notified after unsubscribe: %v", notified)
	}
}

func TestCookieRoundTrip(t *testing.T) {
	t.Parallel()

	tools := []string{"weather", "ecommerce"}
	cookie, err := Cookie(tools)
	if err != nil {
		t.Fatalf("Cookie() error = %v", err)
	}
	if cookie.Name != CookieName {
		t.Errorf("cookie name = %q", cookie.Name)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	if got := FromCookie(r); !reflect.DeepEqual(got, tools) {
		t.Errorf("FromCookie() = %v, want %v", got, tools)
	}
}

func TestFromCookieTolerantOfGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "plain-text"},
		{name: "bad escape", value: "%zz"},
		{name: "wrong type", value: "%7B%7D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: CookieName, Value: tt.value})
			if got := FromCookie(r); got != nil {
				t.Errorf("FromCookie() = %v, want nil", got)
			}
		})
	}

	t.Run("absent cookie", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if got := FromCookie(r); got != nil {
			t.Errorf("FromCookie() = %v, want nil", got)
		}
	})
}
