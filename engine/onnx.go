package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	iface "IntakeDetServer/interface"
	"IntakeDetServer/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// OnnxEngine runs a YOLOv8 ONNX export through the OpenCV DNN module. A
// gocv.Net is not safe for concurrent Forward calls, so the engine keeps one
// network per worker and lends them out per Detect call.
type OnnxEngine struct {
	cfg  iface.EngineConfig
	idle chan *gocv.Net
	nets []*gocv.Net
}

func NewOnnxEngine(cfg iface.EngineConfig) (*OnnxEngine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", cfg.InputSize)
	}
	workers := max(cfg.Workers, 1)
	e := &OnnxEngine{cfg: cfg, idle: make(chan *gocv.Net, workers)}
	for i := 0; i < workers; i++ {
		net := gocv.ReadNetFromONNX(cfg.ModelPath)
		if net.Empty() {
			_ = e.Close()
			return nil, fmt.Errorf("failed to load network from %s", cfg.ModelPath)
		}
		errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
		errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
		if errBackend != nil || errTarget != nil {
			_ = net.Close()
			_ = e.Close()
			return nil, fmt.Errorf("failed to set preferable backend or target: %w", errors.Join(errBackend, errTarget))
		}
		e.nets = append(e.nets, &net)
		e.idle <- &net
	}
	logger.Log().Info("Onnx engine ready",
		zap.String("model", cfg.ModelPath),
		zap.Int("workers", workers),
		zap.Int("inputSize", cfg.InputSize))
	return e, nil
}

func (e *OnnxEngine) Detect(ctx context.Context, img gocv.Mat, conf float32) ([]iface.Result, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	var net *gocv.Net
	select {
	case net = <-e.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { e.idle <- net }()

	size := e.cfg.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	net.SetInput(blob, "")
	output := net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}
	f := frame{
		scaleX: float32(img.Cols()) / float32(size),
		scaleY: float32(img.Rows()) / float32(size),
		width:  float32(img.Cols()),
		height: float32(img.Rows()),
	}
	return decodeYOLO(data, dims[1], dims[2], conf, e.cfg.Iou, f, e.cfg.Names), nil
}

func (e *OnnxEngine) Close() error {
	var errs []error
	for _, net := range e.nets {
		errs = append(errs, net.Close())
	}
	e.nets = nil
	return errors.Join(errs...)
}
