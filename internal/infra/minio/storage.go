package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage is the blob half of the relational backend. Artifacts live under
// "<runId>/<file name>" and are handed out as presigned GET URLs.
type Storage struct {
	client     *miniogo.Client
	bucket     string
	presignTTL time.Duration
}

type StorageConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Storage{
		client:     client,
		bucket:     cfg.Bucket,
		presignTTL: ttl,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func ObjectKey(runID string, slot entity.ArtifactSlot) string {
	return path.Join(runID, slot.FileName())
}

func (s *Storage) PutArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(runID, slot), body, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", slot, err)
	}
	return nil
}

func (s *Storage) stat(ctx context.Context, key string) (miniogo.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
			return info, entity.ErrNotFound
		}
		return info, fmt.Errorf("stat %s: %w", key, err)
	}
	return info, nil
}

func (s *Storage) StatArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	_, err := s.stat(ctx, ObjectKey(runID, slot))
	return err
}

// DeleteArtifact removes the object. S3 deletes of a missing key succeed.
func (s *Storage) DeleteArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	key := ObjectKey(runID, slot)
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Storage) GetArtifactRef(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	key := ObjectKey(runID, slot)
	info, err := s.stat(ctx, key)
	if err != nil {
		return nil, err
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return entity.URLRef(slot, info.ContentType, u.String()), nil
}
