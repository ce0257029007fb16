package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Place is a geocoder search result.
type Place struct {
	Name string
	Lat  float64
	Lon  float64
}

// LocationService searches a public geocoder for event locations. The
// geocoder is reached through an ordered chain of base URLs (the bare
// endpoint first, then relay proxies); each attempt gets its own timeout and
// the first successful response wins.
type LocationService struct {
	http    *http.Client
	bases   []string
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultGeocoderBases is the production fallback chain.
var DefaultGeocoderBases = []string{
	"https://nominatim.openstreetmap.org/search",
	"https://relay-a.peerflex.app/geo/search",
	"https://relay-b.peerflex.app/geo/search",
}

// NewLocationService creates a location service over the given base URLs.
func NewLocationService(bases []string, timeout time.Duration, logger *zap.Logger) *LocationService {
	if len(bases) == 0 {
		bases = DefaultGeocoderBases
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocationService{
		http:    &http.Client{},
		bases:   bases,
		timeout: timeout,
		logger:  logger,
	}
}

type placeRow struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search queries the geocoder chain. Each base is tried in order with its own
// client-side timeout; the call aborts early when ctx is cancelled.
func (s *LocationService) Search(ctx context.Context, query string) ([]Place, error) {
	var lastErr error
	for _, base := range s.bases {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		places, err := s.searchOne(ctx, base, query)
		if err != nil {
			lastErr = err
			s.logger.Warn("geocoder attempt failed", zap.String("base", base), zap.Error(err))
			continue
		}
		return places, nil
	}
	return nil, fmt.Errorf("location search: all endpoints failed: %w", lastErr)
}

func (s *LocationService) searchOne(ctx context.Context, base, query string) ([]Place, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := base + "?format=json&limit=5&q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "peerflex-client")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rows []placeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}

	places := make([]Place, 0, len(rows))
	for _, r := range rows {
		lat, _ := strconv.ParseFloat(r.Lat, 64)
		lon, _ := strconv.ParseFloat(r.Lon, 64)
		places = append(places, Place{Name: r.DisplayName, Lat: lat, Lon: lon})
	}
	return places, nil
}
