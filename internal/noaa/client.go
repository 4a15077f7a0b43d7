// Package noaa fetches tide predictions and water levels from the NOAA
// CO-OPS data API.
package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sweeney/tide-display/internal/logic"
)

const (
	// DefaultBaseURL is the CO-OPS data getter endpoint.
	DefaultBaseURL = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"

	// DefaultStation is Port Townsend, WA.
	DefaultStation = "9444900"

	// LevelsPerDay is the number of six-minute predictions in a UTC day,
	// including both midnights.
	LevelsPerDay = 241

	// LevelInterval is the spacing of level predictions.
	LevelInterval = 6 * time.Minute

	timeLayout = "2006-01-02 15:04"
)

// ErrNoPrediction is returned when the service answers but has no usable
// data for the request.
var ErrNoPrediction = errors.New("no prediction available")

// Client talks to the CO-OPS API for a single station. All times are GMT
// and all levels are feet relative to MLLW.
type Client struct {
	baseURL     string
	station     string
	application string
	httpClient  *http.Client
}

// NewClient creates a client for station.
func NewClient(station string) *Client {
	return NewClientWithURL(DefaultBaseURL, station)
}

// NewClientWithURL creates a client that queries baseURL instead of the
// public endpoint, e.g. a caching proxy.
func NewClientWithURL(baseURL, station string) *Client {
	return &Client{
		baseURL:     baseURL,
		station:     station,
		application: "tide-display",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Station returns the station id the client queries.
func (c *Client) Station() string {
	return c.station
}

// HiLo returns the predicted high and low tides for hours hours starting at
// midnight of begin's UTC day. The service ignores the time of day.
func (c *Client) HiLo(ctx context.Context, begin time.Time, hours int) ([]logic.TideEvent, error) {
	params := c.params("predictions")
	params.Set("interval", "hilo")
	params.Set("range", strconv.Itoa(hours))
	params.Set("begin_date", begin.UTC().Format("20060102"))

	var resp predictionResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("hilo predictions: %w", err)
	}

	events := make([]logic.TideEvent, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		t, err := time.Parse(timeLayout, p.Time)
		if err != nil {
			continue // Skip invalid times
		}
		var kind logic.TideKind
		switch p.Type {
		case "H":
			kind = logic.TideHigh
		case "L":
			kind = logic.TideLow
		default:
			continue
		}
		events = append(events, logic.TideEvent{Kind: kind, Time: t})
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("hilo predictions: %w", ErrNoPrediction)
	}
	return events, nil
}

// LevelPredictions returns the six-minute predicted levels for day's UTC
// day, index i being i*6 minutes after midnight.
func (c *Client) LevelPredictions(ctx context.Context, day time.Time) ([]float64, error) {
	params := c.params("predictions")
	params.Set("range", "24")
	params.Set("begin_date", day.UTC().Format("20060102"))

	var resp predictionResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("level predictions: %w", err)
	}
	if len(resp.Predictions) != LevelsPerDay {
		return nil, fmt.Errorf("level predictions: got %d values, want %d: %w",
			len(resp.Predictions), LevelsPerDay, ErrNoPrediction)
	}

	levels := make([]float64, LevelsPerDay)
	for i, p := range resp.Predictions {
		v, err := parseLevel(p.Value)
		if err != nil {
			return nil, fmt.Errorf("level prediction %d: %w", i, err)
		}
		levels[i] = v
	}
	return levels, nil
}

// WaterLevel returns the latest one-minute observed water level.
func (c *Client) WaterLevel(ctx context.Context) (float64, time.Time, error) {
	params := c.params("one_minute_water_level")
	params.Set("date", "latest")

	var resp observationResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return 0, time.Time{}, fmt.Errorf("water level: %w", err)
	}
	if len(resp.Data) == 0 {
		return 0, time.Time{}, fmt.Errorf("water level: %w", ErrNoPrediction)
	}

	last := resp.Data[len(resp.Data)-1]
	v, err := parseLevel(last.Value)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("water level: %w", err)
	}
	t, _ := time.Parse(timeLayout, last.Time)
	return v, t, nil
}

// parseLevel parses a level in feet. ParseFloat accepts "NaN" and "Inf",
// which are not levels.
func parseLevel(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrNoPrediction)
	}
	return v, nil
}

func (c *Client) params(product string) url.Values {
	params := url.Values{}
	params.Set("application", c.application)
	params.Set("station", c.station)
	params.Set("product", product)
	params.Set("datum", "MLLW")
	params.Set("time_zone", "gmt")
	params.Set("units", "english")
	params.Set("format", "json")
	return params
}

func (c *Client) get(ctx context.Context, params url.Values, out apiResponse) error {
	requestURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// CO-OPS reports bad requests as 200 with an error object
	if msg := out.apiError(); msg != "" {
		return fmt.Errorf("API error %q: %w", msg, ErrNoPrediction)
	}
	return nil
}

// Internal types for CO-OPS responses

type apiResponse interface {
	apiError() string
}

type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e errorBody) apiError() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}

type predictionResponse struct {
	errorBody
	Predictions []struct {
		Time  string `json:"t"`
		Value string `json:"v"`    // NOAA returns this as string
		Type  string `json:"type"` // "H" or "L" for hilo requests
	} `json:"predictions"`
}

type observationResponse struct {
	errorBody
	Data []struct {
		Time  string `json:"t"`
		Value string `json:"v"`
	} `json:"data"`
}
