package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// NominatimBaseURL is the public Nominatim API endpoint
	NominatimBaseURL = "https://nominatim.openstreetmap.org"
	// UnknownLocation is returned when nothing better is known.
	UnknownLocation = "Unknown Location"
)

// Geocoder turns coordinates into a display address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Nominatim is a reverse geocoder limited to one request per second, as the
// public instance's usage policy requires.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewNominatim(baseURL, userAgent string) *Nominatim {
	if baseURL == "" {
		baseURL = NominatimBaseURL
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Address holds the address components used for display.
type Address struct {
	Tourism  string `json:"tourism"`
	Amenity  string `json:"amenity"`
	Building string `json:"building"`
	Road     string `json:"road"`
	Suburb   string `json:"suburb"`
	Quarter  string `json:"quarter"`
	City     string `json:"city"`
	Town     string `json:"town"`
	County   string `json:"county"`
	Country  string `json:"country"`
}

// ReverseResponse is the part of Nominatim's /reverse answer we read.
type ReverseResponse struct {
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FormatAddress builds a short "place, suburb, city, country" label.
func FormatAddress(r *ReverseResponse) string {
	if r == nil {
		return UnknownLocation
	}
	if a := r.Address; a != nil {
		parts := make([]string, 0, 4)
		for _, p := range []string{
			firstNonEmpty(a.Tourism, a.Amenity, a.Building, a.Road),
			firstNonEmpty(a.Suburb, a.Quarter),
			firstNonEmpty(a.City, a.Town, a.County),
			a.Country,
		} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return UnknownLocation
}

// Reverse looks up the address of a coordinate at suburb-level zoom.
func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lng))
	params.Set("zoom", "14")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nominatim request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, string(body))
	}

	var rr ReverseResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return FormatAddress(&rr), nil
}
