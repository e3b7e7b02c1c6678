package mcpserver

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaychat/relay/internal/log"
)

// unpackResult extracts the rendered HTML and JSON summary from a
// dual-payload tool result.
func unpackResult(t *testing.T, res *mcp.CallToolResult) (string, string) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool result is an error: %+v", res.Content)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content items = %d, want 1", len(res.Content))
	}
	embedded, ok := res.Content[0].(*mcp.EmbeddedResource)
	if !ok {
		t.Fatalf("content type = %T, want embedded resource", res.Content[0])
	}
	if embedded.Resource.MIMEType != "text/html" {
		t.Errorf("resource MIME type = %q", embedded.Resource.MIMEType)
	}
	escaped, found := strings.CutPrefix(embedded.Resource.URI, "data:text/html,")
	if !found {
		t.Fatalf("resource URI = %q, want a data URI", embedded.Resource.URI)
	}
	html, err := url.PathUnescape(escaped)
	if err != nil {
		t.Fatalf("unescape HTML: %v", err)
	}
	return html, embedded.Resource.Text
}

func errorText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if !res.IsError {
		t.Fatalf("tool result is not an error: %+v", res.Content)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want text", res.Content[0])
	}
	return text.Text
}

func newEcommerceServer() *ecommerceServer {
	return &ecommerceServer{logger: log.NewNop()}
}

func summaryProducts(t *testing.T, jsonText string) []Product {
	t.Helper()
	var summary struct {
		Products []Product `json:"products"`
		Count    int       `json:"count"`
	}
	if err := json.Unmarshal([]byte(jsonText), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Count != len(summary.Products) {
		t.Errorf("count = %d, products = %d", summary.Count, len(summary.Products))
	}
	return summary.Products
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	es := newEcommerceServer()

	res, _, err := es.getProduct(context.Background(), nil, GetProductInput{ProductID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	html, jsonText := unpackResult(t, res)
	if !strings.Contains(html, "Wireless Headphones") {
		t.Errorf("card HTML missing product name: %s", html)
	}
	if !strings.Contains(html, "In stock") {
		t.Errorf("card HTML missing stock status: %s", html)
	}

	var p Product
	if err := json.Unmarshal([]byte(jsonText), &p); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if p.ID != "p1" || p.Price != 249.99 {
		t.Errorf("summary product = %+v", p)
	}
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()

	es := newEcommerceServer()
	res, _, err := es.getProduct(context.Background(), nil, GetProductInput{ProductID: "p999"})
	if err != nil {
		t.Fatal(err)
	}
	if msg := errorText(t, res); !strings.Contains(msg, "p999") {
		t.Errorf("error text = %q, want the missing id named", msg)
	}
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	price := func(v float64) *float64 { return &v }
	inStock := func(v bool) *bool { return &v }

	tests := []struct {
		name    string
		in      ListProductsInput
		wantIDs []string
	}{
		{
			name:    "all products capped by default limit",
			in:      ListProductsInput{},
			wantIDs: []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"},
		},
		{
			name:    "category filter",
			in:      ListProductsInput{Category: "Electronics"},
			wantIDs: []string{"p1", "p2", "p6"},
		},
		{
			name:    "price band",
			in:      ListProductsInput{MinPrice: price(40), MaxPrice: price(100)},
			wantIDs: []string{"p3", "p5", "p6", "p8"},
		},
		{
			name:    "out of stock only",
			in:      ListProductsInput{InStock: inStock(false)},
			wantIDs: []string{"p4"},
		},
		{
			name:    "explicit limit",
			in:      ListProductsInput{Limit: 2},
			wantIDs: []string{"p1", "p2"},
		},
		{
			name:    "empty result",
			in:      ListProductsInput{Category: "Electronics", MaxPrice: price(1)},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			es := newEcommerceServer()
			res, _, err := es.listProducts(context.Background(), nil, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			_, jsonText := unpackResult(t, res)
			got := summaryProducts(t, jsonText)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("products = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("product[%d] = %s, want %s", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestListProductsTitles(t *testing.T) {
	t.Parallel()

	es := newEcommerceServer()

	res, _, err := es.listProducts(context.Background(), nil, ListProductsInput{})
	if err != nil {
		t.Fatal(err)
	}
	html, _ := unpackResult(t, res)
	if !strings.Contains(html, "Featured Products") {
		t.Errorf("default title missing: %s", html)
	}

	res, _, err = es.listProducts(context.Background(), nil, ListProductsInput{Title: "Summer Sale"})
	if err != nil {
		t.Fatal(err)
	}
	html, _ = unpackResult(t, res)
	if !strings.Contains(html, "Summer Sale") {
		t.Errorf("custom title missing: %s", html)
	}
}

func TestSearchProducts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		wantIDs map[string]bool
	}{
		{
			// "music" appears in descriptions and attributes across the
			// audio-capable products.
			name:    "attribute and description match",
			query:   "music",
			wantIDs: map[string]bool{"p1": true, "p2": true, "p6": true},
		},
		{
			name:    "category match",
			query:   "kitchen",
			wantIDs: map[string]bool{"p3": true},
		},
		{
			name:    "case insensitive",
			query:   "BAMBOO",
			wantIDs: map[string]bool{"p8": true},
		},
		{
			name:    "no match",
			query:   "submarine",
			wantIDs: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			es := newEcommerceServer()
			res, _, err := es.searchProducts(context.Background(), nil, SearchProductsInput{Query: tt.query})
			if err != nil {
				t.Fatal(err)
			}
			_, jsonText := unpackResult(t, res)
			got := summaryProducts(t, jsonText)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("results = %v, want ids %v", got, tt.wantIDs)
			}
			for _, p := range got {
				if !tt.wantIDs[p.ID] {
					t.Errorf("unexpected result %s", p.ID)
				}
			}
		})
	}
}

func TestGetRecommendations(t *testing.T) {
	t.Parallel()

	t.Run("by product", func(t *testing.T) {
		t.Parallel()

		es := newEcommerceServer()
		res, _, err := es.getRecommendations(context.Background(), nil, RecommendationsInput{ProductID: "p1"})
		if err != nil {
			t.Fatal(err)
		}
		html, jsonText := unpackResult(t, res)
		if !strings.Contains(html, "Similar to Wireless Headphones") {
			t.Errorf("title missing: %s", html)
		}
		for _, p := range summaryProducts(t, jsonText) {
			if p.Category != "Electronics" {
				t.Errorf("recommendation %s outside the source category", p.ID)
			}
			if p.ID == "p1" {
				t.Error("source product recommended to itself")
			}
		}
	})

	t.Run("by category", func(t *testing.T) {
		t.Parallel()

		es := newEcommerceServer()
		res, _, err := es.getRecommendations(context.Background(), nil, RecommendationsInput{Category: "Sports & Outdoors"})
		if err != nil {
			t.Fatal(err)
		}
		html, jsonText := unpackResult(t, res)
		if !strings.Contains(html, "More from Sports &amp; Outdoors") {
			t.Errorf("title missing or unescaped: %s", html)
		}
		got := summaryProducts(t, jsonText)
		if len(got) != 2 {
			t.Errorf("recommendations = %d, want the category's two products", len(got))
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		t.Parallel()

		es := newEcommerceServer()
		res, _, err := es.getRecommendations(context.Background(), nil, RecommendationsInput{ProductID: "p999"})
		if err != nil {
			t.Fatal(err)
		}
		errorText(t, res)
	})

	t.Run("no criteria limits the shuffle", func(t *testing.T) {
		t.Parallel()

		es := newEcommerceServer()
		res, _, err := es.getRecommendations(context.Background(), nil, RecommendationsInput{})
		if err != nil {
			t.Fatal(err)
		}
		_, jsonText := unpackResult(t, res)
		if got := summaryProducts(t, jsonText); len(got) != 4 {
			t.Errorf("recommendations = %d, want the default limit", len(got))
		}
	})
}

func TestRenderProductCardEscapesHTML(t *testing.T) {
	t.Parallel()

	p := Product{
		ID:          "px",
		Name:        `<script>alert("x")</script>`,
		Description: "desc",
		Currency:    "USD",
	}
	html := renderProductCardHTML(p)
	if strings.Contains(html, "<script>") {
		t.Errorf("card HTML not escaped: %s", html)
	}
}

func TestRenderProductCardAttributeOrder(t *testing.T) {
	t.Parallel()

	p := Product{
		ID:       "px",
		Name:     "widget",
		Currency: "USD",
		Attributes: map[string]string{
			"weight":   "1kg",
			"battery":  "30h",
			"color":    "black",
			"material": "steel",
		},
	}

	html := renderProductCardHTML(p)
	for i := range 20 {
		if again := renderProductCardHTML(p); again != html {
			t.Fatalf("render %d differs from first render", i)
		}
	}

	// Attributes appear in key order.
	order := []string{"<dt>battery</dt>", "<dt>color</dt>", "<dt>material</dt>", "<dt>weight</dt>"}
	last := -1
	for _, dt := range order {
		idx := strings.Index(html, dt)
		if idx < 0 {
			t.Fatalf("attribute %q missing from card: %s", dt, html)
		}
		if idx < last {
			t.Errorf("attribute %q out of order: %s", dt, html)
		}
		last = idx
	}
}

func TestMatchesQuery(t *testing.T) {
	t.Parallel()

	p, _ := findProduct("p1")
	tests := []struct {
		terms []string
		want  bool
	}{
		{terms: []string{"headphones"}, want: true},
		{terms: []string{"bluetooth"}, want: true}, // attribute value
		{terms: []string{"electronics"}, want: true},
		{terms: []string{"garden"}, want: false},
		{terms: nil, want: false},
	}
	for _, tt := range tests {
		if got := p.matchesQuery(tt.terms); got != tt.want {
			t.Errorf("matchesQuery(%v) = %v, want %v", tt.terms, got, tt.want)
		}
	}
}
