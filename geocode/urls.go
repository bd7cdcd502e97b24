package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

var ErrNoCoordinates = errors.New("no coordinates found in URL")

var coordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`),
	regexp.MustCompile(`q=(-?\d+\.\d+),(-?\d+\.\d+)`),
}

// ParseCoords pulls a lat,lng pair out of a map link. The "@lat,lng" form is
// tried before "q=lat,lng".
func ParseCoords(u string) (float64, float64, bool) {
	for _, re := range coordPatterns {
		m := re.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lng, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			continue
		}
		return lat, lng, true
	}
	return 0, 0, false
}

// Expander resolves shortened links (e.g. maps.app.goo.gl) by following
// redirects.
type Expander struct {
	httpClient *http.Client
}

func NewExpander(timeout time.Duration) *Expander {
	return &Expander{httpClient: &http.Client{Timeout: timeout}}
}

// Expand returns the final URL after redirects.
func (e *Expander) Expand(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to expand url: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.Request.URL.String(), nil
}

// ResolveCoordinates finds coordinates in u, expanding it first if the link
// itself carries none.
func (e *Expander) ResolveCoordinates(ctx context.Context, u string) (float64, float64, error) {
	if lat, lng, ok := ParseCoords(u); ok {
		return lat, lng, nil
	}
	expanded, err := e.Expand(ctx, u)
	if err != nil {
		return 0, 0, err
	}
	if lat, lng, ok := ParseCoords(expanded); ok {
		return lat, lng, nil
	}
	return 0, 0, ErrNoCoordinates
}
