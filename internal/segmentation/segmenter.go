package segmentation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/observability"
	"person-id-backend/internal/storage"

	"github.com/disintegration/imaging"
)

type Scorer interface {
	Score(ctx context.Context, image []byte) ([]Box, bool, error)
}

type Segmenter struct {
	scorer    Scorer
	blobs     storage.BlobStore
	threshold float64
}

func NewSegmenter(scorer Scorer, blobs storage.BlobStore) *Segmenter {
	return &Segmenter{scorer: scorer, blobs: blobs, threshold: config.SegmentScoreThreshold}
}

// Segment uploads one sub-image per person found in the image and returns
// their blob names in detection order. An unreadable source blob or a
// rejected segmentation request yields no segments and no error.
func (s *Segmenter) Segment(ctx context.Context, fileName, imageUrl string) ([]string, error) {
	data, err := s.blobs.Download(ctx, imageUrl)
	if err != nil {
		slog.Warn("unable to download image for segmentation", "file_name", fileName, "error", err)
		return nil, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to read dimensions of image %s: %w", fileName, err)
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	boxes, ok, err := s.scorer.Score(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("segmentation of %s failed: %w", fileName, err)
	}
	if !ok {
		return nil, nil
	}

	accepted := FilterPersonBoxes(boxes, s.threshold)
	slog.Info("segmentation finished", "file_name", fileName, "boxes", len(boxes), "people", len(accepted))

	segments := make([]string, 0, len(accepted))
	for i, box := range accepted {
		points := PolygonToPixels(box.Vertices(), width, height)

		segment, err := ExtractSegment(img, points)
		if err != nil {
			slog.Warn("skipping degenerate segment", "file_name", fileName, "segment", i+1, "error", err)
			continue
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, segment, imaging.PNG); err != nil {
			return nil, fmt.Errorf("error encoding segment of %s: %w", fileName, err)
		}

		name := SegmentFileName(fileName, i+1)
		if err := s.blobs.Upload(ctx, buf.Bytes(), name); err != nil {
			return nil, fmt.Errorf("error uploading segment %s: %w", name, err)
		}

		observability.SegmentsExtracted.Inc()
		segments = append(segments, name)
	}

	return segments, nil
}
