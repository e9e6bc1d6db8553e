package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// InlineFilePartThreshold is the byte size above which a file part's inline
// bytes are off-loaded to object storage and replaced with a uri reference.
const InlineFilePartThreshold = 256 * 1024

// FileOffloader pushes oversized inline file-part bytes to an S3-compatible
// bucket, mirroring the bucket-ensure-with-backoff idiom the teacher already
// used for its task-output bucket, now exercised by the A2A file-part path.
type FileOffloader struct {
	client *minio.Client
	bucket string
}

// NewFileOffloader dials an S3-compatible endpoint and ensures the target
// bucket exists, retrying with exponential backoff (1s, 2s, 4s, ...) up to
// maxRetries times.
func NewFileOffloader(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*FileOffloader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	const maxRetries = 10
	for try := 0; try < maxRetries; try++ {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			log.Error("failed to check object storage bucket", "error", err, "attempt", try+1)
			time.Sleep(time.Second * time.Duration(1<<try))
			continue
		}
		if exists {
			return &FileOffloader{client: client, bucket: bucket}, nil
		}

		log.Info("creating object storage bucket", "bucket", bucket, "attempt", try+1)
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			if try == maxRetries-1 {
				return nil, fmt.Errorf("failed to create bucket %s after %d attempts: %w", bucket, maxRetries, err)
			}
			time.Sleep(time.Second * time.Duration(1<<try))
			continue
		}
		return &FileOffloader{client: client, bucket: bucket}, nil
	}

	return nil, fmt.Errorf("failed to ensure bucket %s exists", bucket)
}

// Offload uploads the part's inline bytes and rewrites it in place to carry
// a uri reference instead, if and only if the part is a file part whose
// inline payload exceeds InlineFilePartThreshold.
func (o *FileOffloader) Offload(ctx context.Context, part *a2a.Part) error {
	if part.Type != a2a.PartTypeFile || part.File == nil || part.File.Bytes == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(part.File.Bytes)
	if err != nil {
		return a2a.ErrInvalidArgument("file part has invalid base64 payload: %s", err)
	}
	if len(raw) <= InlineFilePartThreshold {
		return nil
	}

	objectKey := uuid.NewString()
	if part.File.Name != "" {
		objectKey = objectKey + "-" + part.File.Name
	}

	_, err = o.client.PutObject(ctx, o.bucket, objectKey, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: part.File.MimeType,
	})
	if err != nil {
		return a2a.ErrInternal("failed to offload file part to object storage: %s", err)
	}

	part.File.Bytes = ""
	part.File.URI = fmt.Sprintf("s3://%s/%s", o.bucket, objectKey)
	return nil
}
