package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oshokin/sos-engine/internal/service/location"
)

// DefaultCacheSize is how many addresses are memoized.
const DefaultCacheSize = 1024

// errNoCircles is returned when the circle table is empty.
var errNoCircles = errors.New("no circles to geocode against")

// Geocoder names the region nearest to a point.
type Geocoder struct {
	circles *location.CircleTable
	cache   *lru.Cache[string, string]
}

// New creates a geocoder over the circle table.
func New(circles *location.CircleTable, size int) (*Geocoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode cache: %w", err)
	}

	return &Geocoder{
		circles: circles,
		cache:   cache,
	}, nil
}

// ReverseGeocode returns an address such as "Mumbai, India".
// Coordinates are rounded to about a hundred meters for caching.
func (g *Geocoder) ReverseGeocode(_ context.Context, latitude, longitude float64) (string, error) {
	key := fmt.Sprintf("%.3f,%.3f", latitude, longitude)

	if address, ok := g.cache.Get(key); ok {
		return address, nil
	}

	if g.circles == nil {
		return "", errNoCircles
	}

	circle, ok := g.circles.Nearest(latitude, longitude)
	if !ok {
		return "", errNoCircles
	}

	address := displayName(circle) + ", India"
	g.cache.Add(key, address)

	return address, nil
}

// Len returns the number of memoized addresses.
func (g *Geocoder) Len() int {
	return g.cache.Len()
}

// displayName turns a circle code like "up_east" into "Up East".
func displayName(circle string) string {
	words := strings.Split(circle, "_")

	for i, w := range words {
		if w == "" {
			continue
		}

		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return strings.Join(words, " ")
}
