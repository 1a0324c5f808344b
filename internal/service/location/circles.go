package location

import "strings"

// Point is a latitude/longitude pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// defaultCircles are approximate centroids of the Indian telecom circles.
//
//nolint:gochecknoglobals // Immutable lookup table.
var defaultCircles = map[string]Point{
	"delhi":          {28.6139, 77.2090},
	"mumbai":         {19.0760, 72.8777},
	"kolkata":        {22.5726, 88.3639},
	"chennai":        {13.0827, 80.2707},
	"bangalore":      {12.9716, 77.5946},
	"hyderabad":      {17.3850, 78.4867},
	"pune":           {18.5204, 73.8567},
	"ahmedabad":      {23.0225, 72.5714},
	"rajasthan":      {26.9124, 75.7873},
	"gujarat":        {22.2587, 71.1924},
	"maharashtra":    {19.7515, 75.7139},
	"kerala":         {10.8505, 76.2711},
	"tamilnadu":      {11.1271, 78.6569},
	"karnataka":      {15.3173, 75.7139},
	"andhra":         {15.9129, 79.7400},
	"telangana":      {18.1124, 79.0193},
	"odisha":         {20.9517, 85.0985},
	"westbengal":     {22.9868, 87.8550},
	"bihar":          {25.0961, 85.3131},
	"jharkhand":      {23.6102, 85.2799},
	"assam":          {26.2006, 92.9376},
	"northeast":      {25.4670, 91.3662},
	"himachal":       {31.1048, 77.1734},
	"jammu":          {32.7266, 74.8570},
	"punjab":         {31.1471, 75.3412},
	"haryana":        {29.0588, 76.0856},
	"up_east":        {26.8467, 80.9462},
	"up_west":        {28.2040, 79.8137},
	"madhya_pradesh": {22.9734, 78.6569},
	"chhattisgarh":   {21.2787, 81.8661},
}

// CircleTable maps a telecom circle code to its approximate centroid.
// It is immutable after construction and safe for concurrent use.
type CircleTable struct {
	points        map[string]Point
	defaultCircle string
}

// NewCircleTable builds the table over the built-in centroids.
// An unknown default circle selects delhi.
func NewCircleTable(defaultCircle string) *CircleTable {
	return NewCircleTableFrom(defaultCircles, defaultCircle)
}

// NewCircleTableFrom builds a table over custom centroids.
// When defaultCircle is not present, the lexically first circle becomes the default.
func NewCircleTableFrom(points map[string]Point, defaultCircle string) *CircleTable {
	copied := make(map[string]Point, len(points))
	for k, v := range points {
		copied[normalizeCircle(k)] = v
	}

	defaultCircle = normalizeCircle(defaultCircle)
	if _, ok := copied[defaultCircle]; !ok {
		defaultCircle = ""

		if _, ok := copied["delhi"]; ok {
			defaultCircle = "delhi"
		} else {
			for k := range copied {
				if defaultCircle == "" || k < defaultCircle {
					defaultCircle = k
				}
			}
		}
	}

	return &CircleTable{
		points:        copied,
		defaultCircle: defaultCircle,
	}
}

// Lookup returns the centroid of circle, falling back to the default circle.
// The returned name is the circle actually used. ok is false only for an empty table.
func (t *CircleTable) Lookup(circle string) (string, Point, bool) {
	name := normalizeCircle(circle)
	if p, ok := t.points[name]; ok {
		return name, p, true
	}

	p, ok := t.points[t.defaultCircle]

	return t.defaultCircle, p, ok
}

// Len returns the number of circles.
func (t *CircleTable) Len() int {
	return len(t.points)
}

// Nearest returns the circle whose centroid is closest to the given point.
// It uses squared degree distance, which is good enough to name a region.
func (t *CircleTable) Nearest(latitude, longitude float64) (string, bool) {
	var (
		best     string
		bestDist float64
	)

	for name, p := range t.points {
		dLat := p.Latitude - latitude
		dLon := p.Longitude - longitude
		dist := dLat*dLat + dLon*dLon

		if best == "" || dist < bestDist || (dist == bestDist && name < best) {
			best, bestDist = name, dist
		}
	}

	return best, best != ""
}

func normalizeCircle(circle string) string {
	return strings.ToLower(strings.TrimSpace(circle))
}
