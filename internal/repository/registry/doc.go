// Package registry holds the in-flight alerts of the engine.
//
// Alerts are spread over hash shards so that unrelated alerts never contend
// on a shared lock. Each entry carries its own mutex used to serialise
// mutations of one alert.
package registry
