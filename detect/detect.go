package detect

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"IntakeDetServer/engine"
	"IntakeDetServer/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	DefaultConfidence = 0.15
	DefaultPadding    = 10

	dataURIPrefix = "data:image/png;base64,"
)

var ErrUnreadableImage = errors.New("unreadable image")

type Item struct {
	Index int    `json:"index"`
	Box   Box    `json:"box"`
	Image string `json:"image"`
}

type Result struct {
	Success       bool   `json:"success"`
	DetectedCount int    `json:"detected_count"`
	Items         []Item `json:"items"`
	Message       string `json:"message"`
}

// Service crops every detected item out of an uploaded image.
type Service struct {
	model   *engine.Model
	padding int
}

func NewService(model *engine.Model, padding int) *Service {
	return &Service{model: model, padding: padding}
}

// Detect decodes data, runs the model at conf and returns one item per
// detection. When nothing is detected the whole image is returned as a
// single item, so Items is never empty.
func (s *Service) Detect(ctx context.Context, data []byte, conf float32) (*Result, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	backend, err := s.model.Get()
	if err != nil {
		return nil, err
	}
	detections, err := backend.Detect(ctx, img, conf)
	if err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	width, height := img.Cols(), img.Rows()
	items := make([]Item, 0, max(len(detections), 1))
	for i, det := range detections {
		box := PadBox(det.Box.Corners(), s.padding, width, height)
		uri, err := cropDataURI(img, box)
		if err != nil {
			return nil, fmt.Errorf("crop item %d: %w", i, err)
		}
		items = append(items, Item{Index: i, Box: box, Image: uri})
	}

	if len(items) == 0 {
		uri, err := encodeDataURI(img)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Index: 0, Box: Box{0, 0, width, height}, Image: uri})
	}

	logger.Log().Info(fmt.Sprintf("Detected %d items in image", len(detections)),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Float32("confidence", conf))

	return &Result{
		Success:       true,
		DetectedCount: len(detections),
		Items:         items,
		Message:       summary(len(detections)),
	}, nil
}

func summary(count int) string {
	if count > 0 {
		return fmt.Sprintf("Detected %d item(s)", count)
	}
	return "No distinct items detected. Image added as single item."
}

// Decode reads an encoded image as three-channel BGR.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, ErrUnreadableImage
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if mat.Empty() {
		_ = mat.Close()
		return gocv.Mat{}, ErrUnreadableImage
	}
	return mat, nil
}

// DecodeBase64 accepts plain base64 or a data: URI.
func DecodeBase64(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return data, nil
}

func cropDataURI(img gocv.Mat, box Box) (string, error) {
	rect := box.Rect()
	if rect.Empty() {
		return "", fmt.Errorf("empty crop region %v", box)
	}
	region := img.Region(rect)
	defer region.Close()
	return encodeDataURI(region)
}

func encodeDataURI(img gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
