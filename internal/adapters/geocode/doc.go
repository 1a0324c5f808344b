// Package geocode turns coordinates into a coarse human-readable address:
// the name of the nearest telecom circle. Results are memoized in an LRU cache.
package geocode
