package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/profilehub/apiserver/internal/storage"
)

const imageKeyPrefix = "profile-images/"

var dataURIPattern = regexp.MustCompile(`^data:image/(jpeg|png|gif);base64,`)

var allowedUploadTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
}

// TranscodePublisher enqueues asynchronous image-transcode jobs. The resize
// and re-encode step itself lives behind this boundary.
type TranscodePublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// TranscodeJob is the queue payload describing a stored image to re-encode.
type TranscodeJob struct {
	ObjectKey   string `json:"object_key"`
	OwnerEmail  string `json:"owner_email"`
	ContentType string `json:"content_type"`
}

// UploadGrant is a time-bounded permission to upload one object directly.
type UploadGrant struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
}

// ImageService ingests profile images into object storage.
type ImageService struct {
	storage   *storage.Storage
	publisher TranscodePublisher
	channel   string
	logger    *slog.Logger
}

// NewImageService constructs an ImageService. The publisher may be nil, in
// which case transcode jobs are skipped.
func NewImageService(store *storage.Storage, publisher TranscodePublisher, channel string, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		storage:   store,
		publisher: publisher,
		channel:   channel,
		logger:    logger,
	}
}

// Store decodes a base64 data URI, writes it to object storage, and returns
// the public URL of the stored image.
func (s *ImageService) Store(ctx context.Context, dataURI, ownerEmail string) (string, error) {
	match := dataURIPattern.FindStringSubmatch(dataURI)
	if match == nil {
		return "", fmt.Errorf("%w: invalid image format", ErrImageProcessing)
	}

	subtype := match[1]
	payload := dataURI[len(match[0]):]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", fmt.Errorf("%w: invalid base64 payload", ErrImageProcessing)
	}

	contentType := "image/" + subtype
	key := s.objectKey(ownerEmail, allowedUploadTypes[contentType])
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageProcessing, err)
	}

	s.enqueueTranscode(ctx, key, ownerEmail, contentType)
	return s.storage.PublicURL(key), nil
}

// CreateUploadGrant returns a presigned PUT URL and the object key the
// caller must later commit.
func (s *ImageService) CreateUploadGrant(ctx context.Context, ownerEmail, mimeType string) (UploadGrant, error) {
	ext, ok := allowedUploadTypes[mimeType]
	if !ok {
		return UploadGrant{}, fmt.Errorf("%w: unsupported content type", ErrImageProcessing)
	}

	key := s.objectKey(ownerEmail, ext)
	uploadURL, err := s.storage.PresignPut(ctx, key, mimeType, storage.DefaultPresignExpiry)
	if err != nil {
		return UploadGrant{}, fmt.Errorf("%w: %v", ErrImageProcessing, err)
	}
	return UploadGrant{UploadURL: uploadURL, ObjectKey: key}, nil
}

// CommitReference turns a previously granted object key into a public URL.
// Keys outside the profile-image namespace are rejected.
func (s *ImageService) CommitReference(ctx context.Context, objectKey, ownerEmail string) (string, error) {
	if !strings.HasPrefix(objectKey, imageKeyPrefix) || strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("%w: invalid object key", ErrImageProcessing)
	}
	s.enqueueTranscode(ctx, objectKey, ownerEmail, "")
	return s.storage.PublicURL(objectKey), nil
}

func (s *ImageService) objectKey(ownerEmail, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s%s-%d.%s", imageKeyPrefix, ownerEmail, time.Now().UnixMilli(), ext)
}

// enqueueTranscode publishes a transcode job. Best effort: a broker outage
// must not fail the user-facing request.
func (s *ImageService) enqueueTranscode(ctx context.Context, key, ownerEmail, contentType string) {
	if s.publisher == nil {
		return
	}
	job := TranscodeJob{ObjectKey: key, OwnerEmail: ownerEmail, ContentType: contentType}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, s.channel, data, nil); err != nil {
		s.logger.Warn("failed to enqueue transcode job", "object_key", key, "error", err)
	}
}
