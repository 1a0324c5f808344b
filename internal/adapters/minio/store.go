package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// errNotConfigured is returned when the endpoint or bucket is missing.
var errNotConfigured = errors.New("minio endpoint and bucket are required")

// Store writes each payload as one object.
type Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
	endpoint   string
	useSSL     bool

	// bucketMu guards the lazy bucket creation.
	bucketMu sync.Mutex
	bucketOK   bool
}

// New creates a store from the settings. No network call is made.
func New(cfg config.MinioConfig) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: cfg.PublicBase,
		endpoint:   cfg.Endpoint,
		useSSL:     cfg.UseSSL,
	}, nil
}

// Store uploads data and returns the public URL of the object.
func (s *Store) Store(ctx context.Context, data []byte, kind alert.EvidenceKind, alertID string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := evidence.ObjectKey(alertID, kind)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
		UserMetadata: map[string]string{
			"alert-id": alertID,
			"kind":     string(kind),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return s.PublicURL(key), nil
}

// PublicURL returns the address under which an object is reachable.
func (s *Store) PublicURL(key string) string {
	if s.publicBase != "" {
		return strings.TrimRight(s.publicBase, "/") + "/" + key
	}

	scheme := "http://"
	if s.useSSL {
		scheme = "https://"
	}

	return scheme + s.endpoint + "/" + s.bucket + "/" + key
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	if s.bucketOK {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}

	if !exists {
		if err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}

	s.bucketOK = true

	return nil
}
