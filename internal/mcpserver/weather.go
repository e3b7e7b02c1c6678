package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// nwsBaseURL is the National Weather Service API.
const nwsBaseURL = "https://api.weather.gov"

const nwsUserAgent = "relay-weather/" + Version

// WeatherConfig configures the weather tool server. BaseURL and
// HTTPClient default to the public NWS API; tests point them elsewhere.
type WeatherConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
}

type weatherServer struct {
	logger  *slog.Logger
	baseURL string
	client  *http.Client
}

// ForecastInput is the get-forecast operation's input.
type ForecastInput struct {
	Latitude  float64 `json:"latitude" jsonschema:"Latitude of the location"`
	Longitude float64 `json:"longitude" jsonschema:"Longitude of the location"`
}

// AlertsInput is the get-alerts operation's input.
type AlertsInput struct {
	State string `json:"state" jsonschema:"Two-letter US state code (e.g. CA, NY)"`
}

// forecastPeriod is the slice of the NWS forecast payload the renderer
// and the model need.
type forecastPeriod struct {
	Name            string `json:"name"`
	Temperature     int    `json:"temperature"`
	TemperatureUnit string `json:"temperatureUnit"`
	WindSpeed       string `json:"windSpeed"`
	WindDirection   string `json:"windDirection"`
	ShortForecast   string `json:"shortForecast"`
}

type alertFeature struct {
	Event    string `json:"event"`
	AreaDesc string `json:"areaDesc"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Headline string `json:"headline"`
}

// NewWeather creates the weather MCP server.
func NewWeather(cfg WeatherConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ws := &weatherServer{
		logger:  logger,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
	}
	if ws.baseURL == "" {
		ws.baseURL = nwsBaseURL
	}
	if ws.client == nil {
		ws.client = &http.Client{Timeout: 15 * time.Second}
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "weather",
		Version: Version,
	}, nil)

	forecastSchema, err := jsonschema.For[ForecastInput](nil)
	if err != nil {
		return nil, fmt.Errorf("forecast input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-forecast",
		Description: "Get weather forecast for a location",
		InputSchema: forecastSchema,
	}, ws.getForecast)

	alertsSchema, err := jsonschema.For[AlertsInput](nil)
	if err != nil {
		return nil, fmt.Errorf("alerts input schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-alerts",
		Description: "Get weather alerts for a US state",
		InputSchema: alertsSchema,
	}, ws.getAlerts)

	return &Server{mcpServer: server, name: "weather"}, nil
}

func (ws *weatherServer) getForecast(ctx context.Context, _ *mcp.CallToolRequest, in ForecastInput) (*mcp.CallToolResult, any, error) {
	// The NWS API resolves coordinates to a gridpoint first, then the
	// gridpoint to a forecast.
	var points struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	pointsURL := fmt.Sprintf("%s/points/%.4f,%.4f", ws.baseURL, in.Latitude, in.Longitude)
	if err := ws.get(ctx, pointsURL, &points); err != nil {
		ws.logger.Warn("gridpoint lookup failed", "url", pointsURL, "error", err)
		return errorResult(fmt.Sprintf("Failed to retrieve grid point data for coordinates: %.4f, %.4f. This location may not be supported (US locations only).", in.Latitude, in.Longitude)), nil, nil
	}
	if points.Properties.Forecast == "" {
		return errorResult("No forecast available for this location."), nil, nil
	}

	var forecast struct {
		Properties struct {
			Periods []forecastPeriod `json:"periods"`
		} `json:"properties"`
	}
	if err := ws.get(ctx, points.Properties.Forecast, &forecast); err != nil {
		ws.logger.Warn("forecast fetch failed", "url", points.Properties.Forecast, "error", err)
		return errorResult("Failed to retrieve forecast data."), nil, nil
	}

	periods := forecast.Properties.Periods
	summary, err := json.Marshal(map[string]any{
		"latitude":  in.Latitude,
		"longitude": in.Longitude,
		"periods":   periods,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal forecast: %w", err)
	}
	return htmlResult(renderForecastHTML(in.Latitude, in.Longitude, periods), string(summary)), nil, nil
}

func (ws *weatherServer) getAlerts(ctx context.Context, _ *mcp.CallToolRequest, in AlertsInput) (*mcp.CallToolResult, any, error) {
	state := strings.ToUpper(strings.TrimSpace(in.State))
	if len(state) != 2 {
		return errorResult("State must be a two-letter US state code (e.g. CA, NY)."), nil, nil
	}

	var alerts struct {
		Features []struct {
			Properties alertFeature `json:"properties"`
		} `json:"features"`
	}
	alertsURL := fmt.Sprintf("%s/alerts?area=%s", ws.baseURL, state)
	if err := ws.get(ctx, alertsURL, &alerts); err != nil {
		ws.logger.Warn("alerts fetch failed", "url", alertsURL, "error", err)
		return errorResult("Failed to retrieve alerts data."), nil, nil
	}

	features := make([]alertFeature, 0, len(alerts.Features))
	for _, f := range alerts.Features {
		features = append(features, f.Properties)
	}
	summary, err := json.Marshal(map[string]any{
		"state":  state,
		"alerts": features,
		"count":  len(features),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal alerts: %w", err)
	}
	return htmlResult(renderAlertsHTML(state, features), string(summary)), nil, nil
}

// get fetches a JSON document with the NWS-required headers.
func (ws *weatherServer) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", nwsUserAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// weatherIcon picks an emoji for a short forecast description.
func weatherIcon(forecast string) string {
	f := strings.ToLower(forecast)
	switch {
	case strings.Contains(f, "sunny"), strings.Contains(f, "clear"):
		return "☀️"
	case strings.Contains(f, "rain"), strings.Contains(f, "shower"):
		return "🌧️"
	case strings.Contains(f, "snow"):
		return "❄️"
	case strings.Contains(f, "fog"), strings.Contains(f, "mist"):
		return "🌫️"
	case strings.Contains(f, "thunder"), strings.Contains(f, "lightning"):
		return "⚡"
	case strings.Contains(f, "drizzle"):
		return "🌦️"
	case strings.Contains(f, "cloud"):
		return "☁️"
	default:
		return "🌤️"
	}
}

func renderForecastHTML(lat, lon float64, periods []forecastPeriod) string {
	var b strings.Builder
	b.WriteString(`<div class="weather-forecast">`)
	fmt.Fprintf(&b, `<h1>%.2f°, %.2f°</h1>`, lat, lon)
	for _, p := range periods {
		fmt.Fprintf(&b,
			`<div class="period"><h2>%s %s</h2><div class="temp">%d°%s</div><p>%s</p><div class="wind">💨 %s %s</div></div>`,
			weatherIcon(p.ShortForecast), html.EscapeString(p.Name),
			p.Temperature, html.EscapeString(p.TemperatureUnit),
			html.EscapeString(p.ShortForecast),
			html.EscapeString(p.WindSpeed), html.EscapeString(p.WindDirection),
		)
	}
	b.WriteString(`<p class="source">Data provided by the National Weather Service API</p></div>`)
	return b.String()
}

func renderAlertsHTML(state string, alerts []alertFeature) string {
	var b strings.Builder
	b.WriteString(`<div class="weather-alerts">`)
	fmt.Fprintf(&b, `<h1>Active alerts for %s</h1>`, html.EscapeString(state))
	if len(alerts) == 0 {
		b.WriteString(`<p>No active alerts.</p>`)
	}
	for _, a := range alerts {
		fmt.Fprintf(&b,
			`<div class="alert severity-%s"><h2>%s</h2><p>%s</p><div class="area">%s</div></div>`,
			html.EscapeString(strings.ToLower(a.Severity)),
			html.EscapeString(a.Event),
			html.EscapeString(a.Headline),
			html.EscapeString(a.AreaDesc),
		)
	}
	b.WriteString(`</div>`)
	return b.String()
}
