package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	iface "IntakeDetServer/interface"
	"IntakeDetServer/logger"

	"go.uber.org/zap"
)

type Loader func() (iface.Backend, error)

type loaded struct {
	backend iface.Backend
}

// Model owns the process-wide detector. The first successful Get loads it;
// afterwards it is reused by every request and never reloaded. Failed loads
// leave the model unloaded so a later Get can try again.
type Model struct {
	mu     sync.Mutex
	load   Loader
	cur    atomic.Pointer[loaded]
	ready  chan struct{}
	closed atomic.Bool
}

func NewModel(load Loader) *Model {
	return &Model{load: load, ready: make(chan struct{})}
}

// Get returns the loaded backend, loading it first if needed. Concurrent
// callers wait for a single load.
func (m *Model) Get() (iface.Backend, error) {
	if l := m.cur.Load(); l != nil {
		return l.backend, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.cur.Load(); l != nil {
		return l.backend, nil
	}
	if m.closed.Load() {
		return nil, errors.New("detection model is closed")
	}

	logger.Log().Info("Loading detection model...")
	backend, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("load detection model: %w", err)
	}
	if backend == nil {
		return nil, errors.New("load detection model: loader returned no backend")
	}
	m.cur.Store(&loaded{backend: backend})
	close(m.ready)
	logger.Log().Info("Detection model loaded successfully")
	return backend, nil
}

// Preload loads the model at startup. A failure is logged and the service
// keeps running degraded.
func (m *Model) Preload() bool {
	if _, err := m.Get(); err != nil {
		logger.Log().Error("Failed to load model on startup", zap.Error(err))
		return false
	}
	return true
}

// Loaded reports whether a load has ever succeeded.
func (m *Model) Loaded() bool {
	return m.cur.Load() != nil
}

// Ready is closed once the model has loaded.
func (m *Model) Ready() <-chan struct{} {
	return m.ready
}

// Close releases the backend at shutdown. Loaded keeps reporting true.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}
	if l := m.cur.Load(); l != nil {
		return l.backend.Close()
	}
	return nil
}
