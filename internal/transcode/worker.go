package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"

	_ "image/gif"
	_ "image/png"

	"github.com/profilehub/apiserver/internal/mq"
	"github.com/profilehub/apiserver/internal/services"
	"github.com/profilehub/apiserver/internal/storage"
)

const (
	// maxDimension bounds the longest edge of a transcoded image.
	maxDimension = 512
	jpegQuality  = 85
)

// Worker consumes transcode jobs and replaces stored profile images with a
// bounded-size JPEG rendition.
type Worker struct {
	storage *storage.Storage
	queue   *mq.MQ
	channel string
	logger  *slog.Logger
}

// NewWorker constructs a transcode worker.
func NewWorker(store *storage.Storage, queue *mq.MQ, channel string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		storage: store,
		queue:   queue,
		channel: channel,
		logger:  logger,
	}
}

// Run blocks consuming jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.queue.Subscribe(ctx, w.channel, w.handle)
}

// handle processes one job. Malformed payloads, undecodable images, and
// jobs naming an object that does not exist are acked and dropped so they
// cannot requeue forever; transient storage failures nack for redelivery.
func (w *Worker) handle(ctx context.Context, msg mq.Message) error {
	var job services.TranscodeJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Warn("dropping malformed transcode job", "message_id", msg.ID, "error", err)
		return nil
	}

	reader, err := w.storage.Get(ctx, job.ObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		w.logger.Warn("dropping transcode job for missing object", "object_key", job.ObjectKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching %s: %w", job.ObjectKey, err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", job.ObjectKey, err)
	}

	encoded, err := Reencode(data)
	if err != nil {
		w.logger.Warn("dropping undecodable image", "object_key", job.ObjectKey, "error", err)
		return nil
	}

	if err := w.storage.Put(ctx, job.ObjectKey, bytes.NewReader(encoded), int64(len(encoded)), "image/jpeg"); err != nil {
		return fmt.Errorf("writing %s: %w", job.ObjectKey, err)
	}

	w.logger.Info("transcoded profile image", "object_key", job.ObjectKey, "bytes", len(encoded))
	return nil
}

// Reencode decodes an image and re-encodes it as JPEG, downscaling so the
// longest edge does not exceed maxDimension.
func Reencode(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	img = downscale(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// downscale samples the source at a fixed ratio. Nearest-neighbor is enough
// for avatar-sized output.
func downscale(src image.Image, max int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= max && height <= max {
		return src
	}

	ratio := float64(max) / float64(width)
	if height > width {
		ratio = float64(max) / float64(height)
	}
	outWidth := int(float64(width) * ratio)
	outHeight := int(float64(height) * ratio)
	if outWidth < 1 {
		outWidth = 1
	}
	if outHeight < 1 {
		outHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outWidth, outHeight))
	for y := 0; y < outHeight; y++ {
		srcY := bounds.Min.Y + y*height/outHeight
		for x := 0; x < outWidth; x++ {
			srcX := bounds.Min.X + x*width/outWidth
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
