package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	iface "IntakeDetServer/interface"

	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"
)

const defaultRemoteTimeout = 30 * time.Second

type remoteDetection struct {
	Box        []float32 `json:"box"`
	Confidence float32   `json:"confidence"`
	Label      string    `json:"label"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// RemoteEngine delegates inference to an external HTTP model server. The
// image is sent as a multipart "file" part next to a "confidence" field.
type RemoteEngine struct {
	client       *resty.Client
	inferenceURL string
	healthURL    string
}

// NewRemoteEngine builds the client and probes the server's health endpoint,
// so a model server that is down counts as a failed load.
func NewRemoteEngine(cfg iface.EngineConfig) (*RemoteEngine, error) {
	u, err := url.Parse(cfg.InferenceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inference url %q", cfg.InferenceURL)
	}
	health := *u
	health.Path = "/health"
	health.RawQuery = ""

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	e := &RemoteEngine{
		client:       resty.New().SetTimeout(timeout),
		inferenceURL: u.String(),
		healthURL:    health.String(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.CheckHealth(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *RemoteEngine) CheckHealth(ctx context.Context) error {
	resp, err := e.client.R().SetContext(ctx).Get(e.healthURL)
	if err != nil {
		return fmt.Errorf("ml service not available: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode())
	}
	return nil
}

func (e *RemoteEngine) Detect(ctx context.Context, img gocv.Mat, conf float32) ([]iface.Result, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	payload := bytes.Clone(buf.GetBytes())
	buf.Close()

	var out remoteResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetFileReader("file", "image.png", bytes.NewReader(payload)).
		SetFormData(map[string]string{
			"confidence": strconv.FormatFloat(float64(conf), 'f', -1, 32),
		}).
		SetResult(&out).
		Post(e.inferenceURL)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode())
	}

	results := make([]iface.Result, 0, len(out.Detections))
	for i, det := range out.Detections {
		if len(det.Box) != 4 {
			return nil, fmt.Errorf("detection %d: box has %d coordinates, want 4", i, len(det.Box))
		}
		box := iface.NewBox(det.Box[0], det.Box[1], det.Box[2], det.Box[3])
		results = append(results, iface.Result{
			Conf:   det.Confidence,
			Label:  det.Label,
			Box:    box,
			Center: box.Center(),
		})
	}
	return results, nil
}

func (e *RemoteEngine) Close() error {
	return nil
}
