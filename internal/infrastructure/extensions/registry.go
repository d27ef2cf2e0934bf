package extensions

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

// Registry holds the processor extensions available to one adapter. Load
// registers them with the engine once; later calls are no-ops.
type Registry struct {
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	loaded    bool
	candidate []ports.Extension
	available map[ports.ExtensionKind]ports.Extension
}

func NewRegistry(logger *zap.SugaredLogger, exts ...ports.Extension) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		logger:    logger,
		candidate: exts,
		available: make(map[ports.ExtensionKind]ports.Extension),
	}
}

// Load checks every extension for compatibility and registers the
// compatible ones. A failing extension is logged and left unavailable.
func (r *Registry) Load(engine ports.Engine) error {
	if engine == nil {
		return fmt.Errorf("extensions: nil engine")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	r.loaded = true

	for _, ext := range r.candidate {
		if ext == nil {
			continue
		}
		kind := ext.Kind()
		if _, dup := r.available[kind]; dup {
			r.logger.Warnw("Duplicate extension ignored", "kind", kind)
			continue
		}
		if !ext.CheckCompatibility() {
			r.logger.Warnw("Extension not supported on this platform", "kind", kind)
			continue
		}
		if err := engine.RegisterExtension(ext); err != nil {
			r.logger.Errorw("Failed to register extension", "kind", kind, "error", err)
			continue
		}
		r.available[kind] = ext
		r.logger.Debugw("Extension registered", "kind", kind)
	}
	return nil
}

func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *Registry) get(kind ports.ExtensionKind) (ports.Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.available[kind]
	return ext, ok
}

func (r *Registry) VirtualBackground() (ports.Extension, bool) {
	return r.get(ports.ExtensionVirtualBackground)
}

func (r *Registry) Beauty() (ports.Extension, bool) {
	return r.get(ports.ExtensionBeauty)
}

func (r *Registry) Denoiser() (ports.Extension, bool) {
	return r.get(ports.ExtensionDenoiser)
}

// Available lists the registered kinds.
func (r *Registry) Available() []ports.ExtensionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ports.ExtensionKind, 0, len(r.available))
	for k := range r.available {
		kinds = append(kinds, k)
	}
	return kinds
}
