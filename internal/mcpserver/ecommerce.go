package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetProductInput is the get-product operation's input.
type GetProductInput struct {
	ProductID string `json:"productId" jsonschema:"ID of the product to retrieve"`
}

// ListProductsInput is the list-products operation's input.
type ListProductsInput struct {
	Category string   `json:"category,omitempty" jsonschema:"Filter products by category"`
	MinPrice *float64 `json:"minPrice,omitempty" jsonschema:"Filter products by minimum price"`
	MaxPrice *float64 `json:"maxPrice,omitempty" jsonschema:"Filter products by maximum price"`
	InStock  *bool    `json:"inStock,omitempty" jsonschema:"Filter products by stock availability"`
	Limit    int      `json:"limit,omitempty" jsonschema:"Limit the number of products returned"`
	Title    string   `json:"title,omitempty" jsonschema:"Title for the product list"`
}

// SearchProductsInput is the search-products operation's input.
type SearchProductsInput struct {
	Query string `json:"query" jsonschema:"Search query for products"`
	Limit int    `json:"limit,omitempty" jsonschema:"Limit the number of products returned"`
}

// RecommendationsInput is the get-recommendations operation's input.
type RecommendationsInput struct {
	ProductID string `json:"productId,omitempty" jsonschema:"ID of the product to get recommendations for"`
	Category  string `json:"category,omitempty" jsonschema:"Category to get recommendations from"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Limit the number of recommendations"`
}

type ecommerceServer struct {
	logger *slog.Logger
}

// NewEcommerce creates the product catalog MCP server.
func NewEcommerce(logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	es := &ecommerceServer{logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ecommerce",
		Version: Version,
	}, nil)

	getProductSchema, err := jsonschema.For[GetProductInput](nil)
	if err != nil {
		return nil, fmt.Errorf("get-product input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-product",
		Description: "Get detailed information about a specific product",
		InputSchema: getProductSchema,
	}, es.getProduct)

	listSchema, err := jsonschema.For[ListProductsInput](nil)
	if err != nil {
		return nil, fmt.Errorf("list-products input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list-products",
		Description: "List products with optional filtering",
		InputSchema: listSchema,
	}, es.listProducts)

	searchSchema, err := jsonschema.For[SearchProductsInput](nil)
	if err != nil {
		return nil, fmt.Errorf("search-products input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search-products",
		Description: "Search for products by query",
		InputSchema: searchSchema,
	}, es.searchProducts)

	recSchema, err := jsonschema.For[RecommendationsInput](nil)
	if err != nil {
		return nil, fmt.Errorf("get-recommendations input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-recommendations",
		Description: "Get product recommendations based on a product or category",
		InputSchema: recSchema,
	}, es.getRecommendations)

	return &Server{mcpServer: server, name: "ecommerce"}, nil
}

func (es *ecommerceServer) getProduct(_ context.Context, _ *mcp.CallToolRequest, in GetProductInput) (*mcp.CallToolResult, any, error) {
	product, ok := findProduct(in.ProductID)
	if !ok {
		return errorResult(fmt.Sprintf("Product with ID %s not found", in.ProductID)), nil, nil
	}

	summary, err := json.MarshalIndent(product, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal product: %w", err)
	}
	return htmlResult(renderProductCardHTML(product), string(summary)), nil, nil
}

func (es *ecommerceServer) listProducts(_ context.Context, _ *mcp.CallToolRequest, in ListProductsInput) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	title := in.Title
	if title == "" {
		title = "Featured Products"
	}

	var filtered []Product
	for _, p := range products {
		if in.Category != "" && p.Category != in.Category {
			continue
		}
		if in.MinPrice != nil && p.Price < *in.MinPrice {
			continue
		}
		if in.MaxPrice != nil && p.Price > *in.MaxPrice {
			continue
		}
		if in.InStock != nil && p.InStock != *in.InStock {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return es.listResult(filtered, title, map[string]any{
		"products": filtered,
		"count":    len(filtered),
	})
}

func (es *ecommerceServer) searchProducts(_ context.Context, _ *mcp.CallToolRequest, in SearchProductsInput) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(in.Query))

	var results []Product
	for _, p := range products {
		if p.matchesQuery(terms) {
			results = append(results, p)
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	return es.listResult(results, fmt.Sprintf("Search Results for %q", in.Query), map[string]any{
		"products": results,
		"count":    len(results),
		"query":    in.Query,
	})
}

func (es *ecommerceServer) getRecommendations(_ context.Context, _ *mcp.CallToolRequest, in RecommendationsInput) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 4
	}

	var recommendations []Product
	title := "Recommended Products"

	switch {
	case in.ProductID != "":
		product, ok := findProduct(in.ProductID)
		if !ok {
			return errorResult(fmt.Sprintf("Product with ID %s not found", in.ProductID)), nil, nil
		}
		for _, p := range products {
			if p.Category == product.Category && p.ID != product.ID {
				recommendations = append(recommendations, p)
			}
		}
		title = "Similar to " + product.Name
	case in.Category != "":
		for _, p := range products {
			if p.Category == in.Category {
				recommendations = append(recommendations, p)
			}
		}
		title = "More from " + in.Category
	default:
		recommendations = append(recommendations, products...)
		rand.Shuffle(len(recommendations), func(i, j int) {
			recommendations[i], recommendations[j] = recommendations[j], recommendations[i]
		})
	}
	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}

	return es.listResult(recommendations, title, map[string]any{
		"products": recommendations,
		"count":    len(recommendations),
	})
}

func (es *ecommerceServer) listResult(list []Product, title string, summary map[string]any) (*mcp.CallToolResult, any, error) {
	text, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal product list: %w", err)
	}
	return htmlResult(renderProductListHTML(list, title), string(text)), nil, nil
}

func renderProductCardHTML(p Product) string {
	var b strings.Builder
	b.WriteString(`<div class="product-card">`)
	fmt.Fprintf(&b, `<img src="%s" alt="%s"/>`, html.EscapeString(p.ImageURL), html.EscapeString(p.Name))
	fmt.Fprintf(&b, `<h2>%s</h2>`, html.EscapeString(p.Name))
	fmt.Fprintf(&b, `<p class="description">%s</p>`, html.EscapeString(p.Description))
	fmt.Fprintf(&b, `<div class="price">%.2f %s</div>`, p.Price, html.EscapeString(p.Currency))
	fmt.Fprintf(&b, `<div class="rating">★ %.1f (%d reviews)</div>`, p.Rating, p.ReviewCount)
	if p.InStock {
		b.WriteString(`<div class="stock in-stock">In stock</div>`)
	} else {
		b.WriteString(`<div class="stock out-of-stock">Out of stock</div>`)
	}
	if len(p.Attributes) > 0 {
		b.WriteString(`<dl class="attributes">`)
		for _, k := range slices.Sorted(maps.Keys(p.Attributes)) {
			fmt.Fprintf(&b, `<dt>%s</dt><dd>%s</dd>`, html.EscapeString(k), html.EscapeString(p.Attributes[k]))
		}
		b.WriteString(`</dl>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func renderProductListHTML(list []Product, title string) string {
	var b strings.Builder
	b.WriteString(`<div class="product-list">`)
	fmt.Fprintf(&b, `<h1>%s</h1>`, html.EscapeString(title))
	if len(list) == 0 {
		b.WriteString(`<p>No products found.</p>`)
	}
	b.WriteString(`<div class="grid">`)
	for _, p := range list {
		b.WriteString(renderProductCardHTML(p))
	}
	b.WriteString(`</div></div>`)
	return b.String()
}
