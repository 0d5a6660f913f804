/*
Package storage signs download links for message attachments kept in S3-compatible object
storage. Uploads and deletions belong to the Attachment service; this core only reads.
*/
package storage

import (
	"context"
	"time"
)

// DefaultDownloadURLDuration is how long a presigned download link stays valid.
const DefaultDownloadURLDuration = 15 * time.Minute

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// DownloadURLDuration defaults to DefaultDownloadURLDuration when zero.
	DownloadURLDuration time.Duration
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// DownloadURL presigns key with the configured duration.
	DownloadURL(ctx context.Context, key string) (string, error)
}

// NewStorageService is the factory function for StorageService.
// Only S3 compatible implementations are supported.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	if cfg.DownloadURLDuration <= 0 {
		cfg.DownloadURLDuration = DefaultDownloadURLDuration
	}
	return newS3Client(ctx, cfg)
}
