// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/labscan/labscan-api/internal/config"
	"github.com/labscan/labscan-api/internal/models"
)

// StorageService archives catalog snapshots to S3-compatible object storage.
// Archives keep a history of provider prices beyond the current CSV on disk.
type StorageService struct {
	client  *s3.Client
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint supports S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:  client,
		bucket:  cfg.StorageBucket,
		enabled: true,
		logger:  logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

func archiveKey(provider models.Provider, citySlug string, at time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s/%s.csv", provider, citySlug, at.UTC().Format("2006-01-02T15-04-05"))
}

// ArchiveSnapshot stores one CSV snapshot under a timestamped key.
func (s *StorageService) ArchiveSnapshot(ctx context.Context, provider models.Provider, citySlug string, data []byte) error {
	if !s.enabled {
		return nil // silently skip if storage is disabled
	}

	key := archiveKey(provider, citySlug, time.Now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}

	s.logger.Info("archived snapshot",
		"provider", provider,
		"city", citySlug,
		"key", key,
		"size_bytes", len(data),
	)
	return nil
}

// GetArchivedSnapshot fetches one archived snapshot by its full key.
func (s *StorageService) GetArchivedSnapshot(ctx context.Context, key string) ([]byte, error) {
	if !s.enabled {
		return nil, fmt.Errorf("storage is not enabled")
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get archived snapshot: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived snapshot: %w", err)
	}
	return data, nil
}

// ListArchives returns archive keys for one provider and city. Keys embed
// the snapshot timestamp, so lexicographic S3 order is chronological.
func (s *StorageService) ListArchives(ctx context.Context, provider models.Provider, citySlug string) ([]string, error) {
	if !s.enabled {
		return nil, fmt.Errorf("storage is not enabled")
	}

	prefix := fmt.Sprintf("snapshots/%s/%s/", provider, citySlug)
	var keys []string
	var continuation *string
	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", err)
		}
		for _, obj := range output.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuation = output.NextContinuationToken
	}
	return keys, nil
}

// DeleteOldArchives removes archives older than maxAge. Returns the number deleted.
func (s *StorageService) DeleteOldArchives(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	var continuation *string
	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String("snapshots/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to list archives: %w", err)
		}
		for _, obj := range output.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if obj.LastModified.After(cutoff) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				s.logger.Warn("failed to delete archive", "key", *obj.Key, "error", err)
				continue
			}
			deleted++
		}
		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuation = output.NextContinuationToken
	}

	if deleted > 0 {
		s.logger.Info("deleted old archives", "count", deleted)
	}
	return deleted, nil
}
