package engine

import (
	"fmt"

	iface "IntakeDetServer/interface"
)

const (
	BackendOnnx   = "onnx"
	BackendRemote = "remote"

	// maxDetections caps the boxes kept after NMS per image.
	maxDetections = 300
)

// NewBackend builds the detector selected by cfg.Backend. Loading is slow and
// may fail; callers go through Model so it happens once.
func NewBackend(cfg iface.EngineConfig) (iface.Backend, error) {
	switch cfg.Backend {
	case BackendOnnx:
		return NewOnnxEngine(cfg)
	case BackendRemote:
		return NewRemoteEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}
