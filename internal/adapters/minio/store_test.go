package minio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// fakeS3 is a minimal S3 endpoint holding one bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  bool
	objects []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := r.URL.Query()["location"]; ok {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))

		return
	}

	_, key := splitBucketPath(r.URL.Path)

	switch {
	case r.Method == http.MethodHead && key == "":
		if !f.bucket {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.bucket = true

		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.objects = append(f.objects, key)

		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// splitBucketPath splits a path-style request path. Bucket-level requests
// may carry a trailing slash and yield an empty key.
func splitBucketPath(path string) (string, string) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")

	return bucket, key
}

// TestSplitBucketPath treats bucket paths with and without a trailing slash alike.
func TestSplitBucketPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		bucket string
		key    string
	}{
		{path: "/evidence", bucket: "evidence"},
		{path: "/evidence/", bucket: "evidence"},
		{path: "/evidence/alerts/A1/audio/x.m4a", bucket: "evidence", key: "alerts/A1/audio/x.m4a"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			bucket, key := splitBucketPath(tt.path)
			require.Equal(t, tt.bucket, bucket)
			require.Equal(t, tt.key, key)
		})
	}
}

// TestStore_Store creates the bucket once and uploads under the alert prefix.
func TestStore_Store(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(config.MinioConfig{
		Endpoint:   strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:  "access",
		SecretKey:  "secret",
		Bucket:     "evidence",
		PublicBase: "https://cdn.example/evidence/",
	})
	require.NoError(t, err)

	ref, err := s.Store(context.Background(), []byte("clip"), alert.EvidenceAudio, "A1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "https://cdn.example/evidence/alerts/A1/audio/"))
	require.True(t, strings.HasSuffix(ref, ".m4a"))

	_, err = s.Store(context.Background(), []byte("clip"), alert.EvidenceAudio, "A1")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	require.True(t, fake.bucket)
	require.Len(t, fake.objects, 2)
	require.True(t, strings.HasPrefix(fake.objects[0], "alerts/A1/audio/"))
}

// TestStore_PublicURL falls back to the endpoint address.
func TestStore_PublicURL(t *testing.T) {
	t.Parallel()

	s, err := New(config.MinioConfig{Endpoint: "minio:9000", Bucket: "evidence", UseSSL: true})
	require.NoError(t, err)
	require.Equal(t, "https://minio:9000/evidence/alerts/A1/x.jpg", s.PublicURL("alerts/A1/x.jpg"))

	_, err = New(config.MinioConfig{Endpoint: "minio:9000"})
	require.ErrorIs(t, err, errNotConfigured)
}
