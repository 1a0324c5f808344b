// Package redisstream forwards alert events to a Redis stream so that other
// services can follow the alert lifecycle.
package redisstream
