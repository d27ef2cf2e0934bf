package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/validation"
)

var errEffectUnavailable = errors.New("effect extension not available")

// pipeTarget is a local track that can carry processors.
type pipeTarget interface {
	Pipe(p ports.Processor) error
	Unpipe(p ports.Processor) error
}

// EffectPipeline owns one processor created from an extension: it is
// created and initialized at most once and piped into at most one track
// at a time.
type EffectPipeline[P ports.Processor] struct {
	name     string
	ext      ports.Extension
	assetDir string

	mu        sync.Mutex
	processor P
	created   bool
	ready     bool
	track     pipeTarget
}

func NewEffectPipeline[P ports.Processor](name string, ext ports.Extension, assetDir string) *EffectPipeline[P] {
	return &EffectPipeline[P]{name: name, ext: ext, assetDir: assetDir}
}

func (p *EffectPipeline[P]) Available() bool {
	return p.ext != nil
}

// Initialized reports whether the processor finished Init.
func (p *EffectPipeline[P]) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Bound reports whether the processor is piped into a track.
func (p *EffectPipeline[P]) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track != nil
}

func (p *EffectPipeline[P]) ensureLocked(ctx context.Context) (P, error) {
	var zero P
	if p.ext == nil {
		return zero, errEffectUnavailable
	}
	if !p.created {
		raw, err := p.ext.CreateProcessor()
		if err != nil {
			return zero, fmt.Errorf("%s: create processor: %w", p.name, err)
		}
		proc, ok := raw.(P)
		if !ok {
			return zero, fmt.Errorf("%s: unexpected processor type %T", p.name, raw)
		}
		p.processor = proc
		p.created = true
	}
	if !p.ready {
		if err := p.processor.Init(ctx, p.assetDir); err != nil {
			return zero, fmt.Errorf("%s: init processor: %w", p.name, err)
		}
		p.ready = true
	}
	return p.processor, nil
}

// Bind pipes the processor into t, moving it off any previous track.
func (p *EffectPipeline[P]) Bind(ctx context.Context, t pipeTarget) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc, err := p.ensureLocked(ctx)
	if err != nil {
		return err
	}
	if p.track == t {
		return nil
	}
	if p.track != nil {
		_ = p.track.Unpipe(proc)
		p.track = nil
	}
	if t == nil {
		return nil
	}
	if err := t.Pipe(proc); err != nil {
		return fmt.Errorf("%s: pipe: %w", p.name, err)
	}
	p.track = t
	return nil
}

// Unbind forgets the current track. The processor survives for the next Bind.
func (p *EffectPipeline[P]) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track != nil && p.created {
		_ = p.track.Unpipe(p.processor)
	}
	p.track = nil
}

// Configure runs fn against the initialized processor.
func (p *EffectPipeline[P]) Configure(ctx context.Context, fn func(P) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	proc, err := p.ensureLocked(ctx)
	if err != nil {
		return err
	}
	return fn(proc)
}

func (p *EffectPipeline[P]) Enable(ctx context.Context) error {
	return p.Configure(ctx, func(proc P) error { return proc.Enable(ctx) })
}

// Disable is a no-op when no processor was ever created.
func (p *EffectPipeline[P]) Disable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.created {
		return nil
	}
	return p.processor.Disable(ctx)
}

func (p *EffectPipeline[P]) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created && p.processor.Enabled()
}

func (a *Adapter) backgroundOptions(ctx context.Context, cfg domain.VirtualBackgroundConfig) (ports.VirtualBackgroundOptions, error) {
	opts := ports.VirtualBackgroundOptions{Type: cfg.Type}
	switch cfg.Type {
	case domain.BackgroundBlur:
		opts.BlurDegree = cfg.BlurTier()
	case domain.BackgroundColor:
		opts.Color = cfg.Color
	case domain.BackgroundImage:
		img, err := a.images.GetOrSet(ctx, cfg.ImageURL, func(ctx context.Context) (*ports.Image, error) {
			return a.engine.LoadImage(ctx, cfg.ImageURL)
		})
		if err != nil {
			return opts, fmt.Errorf("load background image: %w", err)
		}
		opts.Source = img
	default:
		return opts, fmt.Errorf("unknown background type %q", cfg.Type)
	}
	return opts, nil
}

func validateBackground(cfg domain.VirtualBackgroundConfig) error {
	switch cfg.Type {
	case domain.BackgroundNone, domain.BackgroundBlur:
		return nil
	case domain.BackgroundColor:
		return validation.ValidateColor(cfg.Color)
	case domain.BackgroundImage:
		return validation.ValidateURL(cfg.ImageURL)
	default:
		return fmt.Errorf("unknown background type %q", cfg.Type)
	}
}

// SetVirtualBackground stores cfg and shows it on the preview processor.
// The published camera is untouched until ApplyVirtualBackground.
func (a *Adapter) SetVirtualBackground(ctx context.Context, cfg domain.VirtualBackgroundConfig) error {
	if cfg.Type == "" {
		cfg.Type = domain.BackgroundNone
	}
	if err := validateBackground(cfg); err != nil {
		a.emitError(apperrors.ErrCodeVBFailed, true, err)
		return nil
	}
	if !a.vbPreview.Available() {
		a.emitError(apperrors.ErrCodeVBNotAvailable, true, errEffectUnavailable)
		return nil
	}

	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	enabled := cfg.Type != domain.BackgroundNone
	if !enabled {
		if err := a.vbPreview.Disable(ctx); err != nil {
			a.emitError(apperrors.ErrCodeVBFailed, true, err)
			return nil
		}
	} else {
		opts, err := a.backgroundOptions(ctx, cfg)
		if err == nil {
			err = a.vbPreview.Configure(ctx, func(p ports.VirtualBackgroundProcessor) error {
				if err := p.SetOptions(opts); err != nil {
					return err
				}
				return p.Enable(ctx)
			})
		}
		if err != nil {
			a.emitError(apperrors.ErrCodeVBFailed, true, err)
			return nil
		}
	}

	a.mu.Lock()
	a.vbConfig = cfg
	a.vbEnabled = enabled
	applied := a.vbApplied
	a.mu.Unlock()

	a.logger.Debugw("Virtual background configured", "type", cfg.Type)
	a.emit(events.VirtualBackgroundChanged{Enabled: enabled, Config: cfg, Applied: applied})
	return nil
}

// ApplyVirtualBackground copies the previewed configuration onto the
// published camera.
func (a *Adapter) ApplyVirtualBackground(ctx context.Context) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	cfg, enabled, cam := a.vbConfig, a.vbEnabled, a.cam
	a.mu.Unlock()

	if !enabled || cfg.Type == domain.BackgroundNone {
		a.logger.Warnw("No virtual background to apply")
		return nil
	}
	if !a.vbMain.Available() {
		a.emitError(apperrors.ErrCodeVBNotAvailable, true, errEffectUnavailable)
		return nil
	}

	opts, err := a.backgroundOptions(ctx, cfg)
	if err == nil && cam != nil {
		err = a.vbMain.Bind(ctx, cam)
	}
	if err == nil {
		err = a.vbMain.Configure(ctx, func(p ports.VirtualBackgroundProcessor) error {
			if err := p.SetOptions(opts); err != nil {
				return err
			}
			return p.Enable(ctx)
		})
	}
	if err != nil {
		a.emitError(apperrors.ErrCodeVBFailed, true, err)
		return nil
	}

	a.mu.Lock()
	a.vbApplied = true
	a.mu.Unlock()

	a.logger.Infow("Virtual background applied", "type", cfg.Type)
	a.emit(events.VirtualBackgroundChanged{Enabled: true, Config: cfg, Applied: true})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) DisableVirtualBackground(ctx context.Context) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	if err := a.vbPreview.Disable(ctx); err != nil {
		a.logger.Warnw("Failed to disable preview background", "error", err)
	}
	if err := a.vbMain.Disable(ctx); err != nil {
		a.logger.Warnw("Failed to disable background", "error", err)
	}

	none := domain.VirtualBackgroundConfig{Type: domain.BackgroundNone}
	a.mu.Lock()
	a.vbConfig = none
	a.vbEnabled = false
	a.vbApplied = false
	a.mu.Unlock()

	a.emit(events.VirtualBackgroundChanged{Enabled: false, Config: none, Applied: false})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) SetBeautyEffect(ctx context.Context, opts domain.BeautyOptions) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	cam := a.cam
	a.mu.Unlock()
	if cam == nil {
		a.logger.Infow("No camera track for beauty effect")
		return nil
	}
	if !a.beauty.Available() {
		a.emitError(apperrors.ErrCodeBeautyNotAvailable, true, errEffectUnavailable)
		return nil
	}

	err := a.beauty.Bind(ctx, cam)
	if err == nil {
		err = a.beauty.Configure(ctx, func(p ports.BeautyProcessor) error {
			if err := p.SetOptions(opts.Normalized()); err != nil {
				return err
			}
			return p.Enable(ctx)
		})
	}
	if err != nil {
		a.emitError(apperrors.ErrCodeBeautyFailed, true, err)
		return nil
	}

	a.mu.Lock()
	a.beautyOpts = opts
	a.beautyOn = true
	a.mu.Unlock()

	a.emit(events.BeautyEffectChanged{Enabled: true, Options: opts})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) DisableBeautyEffect(ctx context.Context) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	if err := a.beauty.Disable(ctx); err != nil {
		a.emitError(apperrors.ErrCodeBeautyFailed, true, err)
		return nil
	}

	a.mu.Lock()
	a.beautyOn = false
	opts := a.beautyOpts
	a.mu.Unlock()

	a.emit(events.BeautyEffectChanged{Enabled: false, Options: opts})
	a.emitLocalUpdated()
	return nil
}

func denoiserMode(level domain.NoiseSuppressionLevel) ports.DenoiserMode {
	if level == domain.NoiseHigh || level == domain.NoiseAI {
		return ports.DenoiserStationary
	}
	return ports.DenoiserNSNG
}

func (a *Adapter) SetNoiseSuppression(ctx context.Context, level domain.NoiseSuppressionLevel) error {
	switch level {
	case domain.NoiseOff, domain.NoiseLow, domain.NoiseMedium, domain.NoiseHigh, domain.NoiseAI:
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown noise suppression level %q", level))
	}

	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	mic := a.mic
	a.mu.Unlock()
	if mic == nil {
		a.logger.Infow("No microphone track for noise suppression")
		return nil
	}
	if !a.denoiser.Available() {
		a.emitError(apperrors.ErrCodeDenoiserNotAvailable, true, errEffectUnavailable)
		return nil
	}

	err := a.denoiser.Bind(ctx, mic)
	if err == nil {
		if level == domain.NoiseOff {
			err = a.denoiser.Disable(ctx)
		} else {
			err = a.denoiser.Configure(ctx, func(p ports.DenoiserProcessor) error {
				if err := p.SetMode(denoiserMode(level)); err != nil {
					return err
				}
				return p.Enable(ctx)
			})
		}
	}
	if err != nil {
		a.emitError(apperrors.ErrCodeDenoiserFailed, true, err)
		return nil
	}

	a.mu.Lock()
	a.noiseLevel = level
	a.mu.Unlock()

	a.emit(events.NoiseSuppressionChanged{Level: level})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) DisableNoiseSuppression(ctx context.Context) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	if err := a.denoiser.Disable(ctx); err != nil {
		a.emitError(apperrors.ErrCodeDenoiserFailed, true, err)
		return nil
	}

	a.mu.Lock()
	a.noiseLevel = domain.NoiseOff
	a.mu.Unlock()

	a.emit(events.NoiseSuppressionChanged{Level: domain.NoiseOff})
	a.emitLocalUpdated()
	return nil
}

// StartRecording is served by a cloud recording backend this adapter does
// not have.
func (a *Adapter) StartRecording(ctx context.Context, cfg domain.RecordingConfig) error {
	a.logger.Warnw("Recording requested but not available")
	a.emitError(apperrors.ErrCodeRecordingUnavailable, true, nil)
	return nil
}

func (a *Adapter) StopRecording(ctx context.Context) error {
	a.emitError(apperrors.ErrCodeRecordingUnavailable, true, nil)
	return nil
}

// rebindEffects moves piped main-track processors onto freshly created
// tracks. Callers hold mediaMu.
func (a *Adapter) rebindEffects(ctx context.Context) {
	a.mu.Lock()
	cam, mic := a.cam, a.mic
	vbApplied, beautyOn := a.vbApplied, a.beautyOn
	denoise := a.noiseLevel != domain.NoiseOff
	a.mu.Unlock()

	if cam != nil && vbApplied {
		if err := a.vbMain.Bind(ctx, cam); err != nil {
			a.logger.Warnw("Failed to re-bind virtual background", "error", err)
		}
	}
	if cam != nil && beautyOn {
		if err := a.beauty.Bind(ctx, cam); err != nil {
			a.logger.Warnw("Failed to re-bind beauty effect", "error", err)
		}
	}
	if mic != nil && denoise {
		if err := a.denoiser.Bind(ctx, mic); err != nil {
			a.logger.Warnw("Failed to re-bind noise suppression", "error", err)
		}
	}
}
