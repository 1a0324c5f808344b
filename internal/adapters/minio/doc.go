// Package minio stores evidence payloads in S3-compatible object storage.
package minio
