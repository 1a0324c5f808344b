// Package filestore keeps evidence payloads on the local disk. It is used
// when no object storage is configured.
package filestore
