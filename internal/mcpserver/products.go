package mcpserver

import "strings"

// Product is one catalog item served by the ecommerce tool.
type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	ImageURL    string            `json:"imageUrl"`
	Category    string            `json:"category"`
	Rating      float64           `json:"rating"`
	ReviewCount int               `json:"reviewCount"`
	InStock     bool              `json:"inStock"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// products is the demo catalog.
var products = []Product{
	{
		ID:          "p1",
		Name:        "Wireless Headphones",
		Description: "Premium wireless headphones with noise cancellation and 20-hour battery life. Perfect for immersive music listening with deep bass and clear highs.",
		Price:       249.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=500&h=400&fit=crop",
		Category:    "Electronics",
		Rating:      4.7,
		ReviewCount: 1254,
		InStock:     true,
		Attributes: map[string]string{
			"color":        "Black",
			"connectivity": "Bluetooth 5.0",
			"batteryLife":  "20 hours",
			"noiseCancel":  "Active",
			"soundQuality": "Hi-Fi Audio",
			"usageType":    "Music, Calls, Gaming",
		},
	},
	{
		ID:          "p2",
		Name:        "Smartwatch",
		Description: "Fitness tracking smartwatch with heart rate monitor and GPS. Control your music playback with easy access controls.",
		Price:       199.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1523275335684-37898b6baf30?w=500&h=400&fit=crop",
		Category:    "Electronics",
		Rating:      4.5,
		ReviewCount: 856,
		InStock:     true,
		Attributes: map[string]string{
			"color":          "Silver",
			"connectivity":   "Bluetooth 5.0",
			"batteryLife":    "5 days",
			"waterResistant": "Yes",
			"features":       "Music control, Fitness tracking",
		},
	},
	{
		ID:          "p3",
		Name:        "Coffee Maker",
		Description: "Programmable coffee maker with thermal carafe, keeps coffee hot for hours.",
		Price:       79.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1572119865084-43c285814d63?w=500&h=400&fit=crop",
		Category:    "Home & Kitchen",
		Rating:      4.2,
		ReviewCount: 532,
		InStock:     true,
		Attributes: map[string]string{
			"color":        "Stainless Steel",
			"capacity":     "12 cups",
			"programmable": "Yes",
		},
	},
	{
		ID:          "p4",
		Name:        "Yoga Mat",
		Description: "Non-slip yoga mat, perfect for home or studio practice.",
		Price:       29.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1599447292625-11a508c23966?w=500&h=400&fit=crop",
		Category:    "Sports & Outdoors",
		Rating:      4.8,
		ReviewCount: 302,
		InStock:     false,
		Attributes: map[string]string{
			"material":  "TPE",
			"thickness": "6mm",
			"color":     "Purple",
		},
	},
	{
		ID:          "p5",
		Name:        "Desk Lamp",
		Description: "LED desk lamp with adjustable brightness and color temperature.",
		Price:       49.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1507473885765-e6ed057f782c?w=500&h=400&fit=crop",
		Category:    "Home & Office",
		Rating:      4.4,
		ReviewCount: 210,
		InStock:     true,
		Attributes: map[string]string{
			"color":       "White",
			"lightSource": "LED",
			"adjustable":  "Yes",
		},
	},
	{
		ID:          "p6",
		Name:        "Portable Bluetooth Speaker",
		Description: "Waterproof portable speaker with 360° sound and 12-hour battery life. Enjoy your music anywhere with deep bass and crystal clear sound quality.",
		Price:       89.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1608043152269-423dbba4e7e1?w=500&h=400&fit=crop",
		Category:    "Electronics",
		Rating:      4.6,
		ReviewCount: 428,
		InStock:     true,
		Attributes: map[string]string{
			"color":         "Blue",
			"connectivity":  "Bluetooth 5.1",
			"batteryLife":   "12 hours",
			"waterproof":    "IPX7",
			"audioFeatures": "Stereo, Bass boost, Music streaming",
			"usage":         "Music, Podcasts, Outdoor",
		},
	},
	{
		ID:          "p7",
		Name:        "Stainless Steel Water Bottle",
		Description: "Vacuum insulated water bottle keeps drinks cold for 24 hours or hot for 12 hours.",
		Price:       34.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1602143407151-7111542de6e8?w=500&h=400&fit=crop",
		Category:    "Sports & Outdoors",
		Rating:      4.7,
		ReviewCount: 621,
		InStock:     true,
		Attributes: map[string]string{
			"capacity":  "24 oz",
			"material":  "Stainless Steel",
			"insulated": "Yes",
			"color":     "Matte Black",
		},
	},
	{
		ID:          "p8",
		Name:        "Plant Stand",
		Description: "Bamboo plant stand with 3 tiers for indoor or outdoor use.",
		Price:       45.99,
		Currency:    "USD",
		ImageURL:    "https://images.unsplash.com/photo-1485955900006-10f4d324d411?w=500&h=400&fit=crop",
		Category:    "Home & Garden",
		Rating:      4.3,
		ReviewCount: 187,
		InStock:     true,
		Attributes: map[string]string{
			"material": "Bamboo",
			"tiers":    "3",
			"width":    "28 inches",
			"height":   "36 inches",
		},
	},
}

// findProduct returns the product with the given id.
func findProduct(id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// matchesQuery reports whether any search term appears in the product's
// name, description, category, or attributes.
func (p Product) matchesQuery(terms []string) bool {
	for _, term := range terms {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Description), term) ||
			strings.Contains(strings.ToLower(p.Category), term) {
			return true
		}
		for k, v := range p.Attributes {
			if strings.Contains(strings.ToLower(k), term) ||
				strings.Contains(strings.ToLower(v), term) {
				return true
			}
		}
	}
	return false
}
