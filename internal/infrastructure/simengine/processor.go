package simengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

// Extension is a simulated processor plugin. Its failure knobs apply to
// every processor it creates.
type Extension struct {
	kind ports.ExtensionKind

	mu         sync.Mutex
	compatible bool
	createErr  error
	initErr    error
	enableErr  error
	processors []*Processor
}

func NewVirtualBackgroundExtension() *Extension {
	return &Extension{kind: ports.ExtensionVirtualBackground, compatible: true}
}

func NewBeautyExtension() *Extension {
	return &Extension{kind: ports.ExtensionBeauty, compatible: true}
}

func NewDenoiserExtension() *Extension {
	return &Extension{kind: ports.ExtensionDenoiser, compatible: true}
}

func (x *Extension) Kind() ports.ExtensionKind { return x.kind }

func (x *Extension) CheckCompatibility() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.compatible
}

func (x *Extension) SetCompatible(ok bool) {
	x.mu.Lock()
	x.compatible = ok
	x.mu.Unlock()
}

func (x *Extension) FailCreate(err error) {
	x.mu.Lock()
	x.createErr = err
	x.mu.Unlock()
}

// FailInit makes Init fail, e.g. when the wasm asset cannot be fetched.
func (x *Extension) FailInit(err error) {
	x.mu.Lock()
	x.initErr = err
	x.mu.Unlock()
}

func (x *Extension) FailEnable(err error) {
	x.mu.Lock()
	x.enableErr = err
	x.mu.Unlock()
}

func (x *Extension) CreateProcessor() (ports.Processor, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.createErr != nil {
		return nil, x.createErr
	}
	p := &Processor{ext: x, kind: x.kind}
	x.processors = append(x.processors, p)
	if x.kind == ports.ExtensionBeauty {
		return BeautyProcessor{p}, nil
	}
	return p, nil
}

// Processors returns every processor created so far, oldest first.
func (x *Extension) Processors() []*Processor {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*Processor(nil), x.processors...)
}

func (x *Extension) errors() (initErr, enableErr error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.initErr, x.enableErr
}

// Processor implements the virtual background, beauty and denoiser
// processor interfaces; which one applies depends on its kind.
type Processor struct {
	ext  *Extension
	kind ports.ExtensionKind

	mu        sync.Mutex
	initCount int
	assetDir  string
	enabled   bool
	vbOptions []ports.VirtualBackgroundOptions
	beauty    []domain.NormalizedBeauty
	mode      ports.DenoiserMode
}

func (p *Processor) Kind() ports.ExtensionKind { return p.kind }

func (p *Processor) Init(ctx context.Context, assetDir string) error {
	initErr, _ := p.ext.errors()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initCount++
	if initErr != nil {
		return initErr
	}
	p.assetDir = assetDir
	return nil
}

func (p *Processor) Enable(ctx context.Context) error {
	_, enableErr := p.ext.errors()
	if enableErr != nil {
		return enableErr
	}
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

func (p *Processor) Disable(ctx context.Context) error {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	return nil
}

func (p *Processor) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Processor) SetOptions(opts ports.VirtualBackgroundOptions) error {
	if p.kind != ports.ExtensionVirtualBackground {
		return fmt.Errorf("%s processor has no background options", p.kind)
	}
	if opts.Type == domain.BackgroundImage && opts.Source == nil {
		return fmt.Errorf("image background without source")
	}
	p.mu.Lock()
	p.vbOptions = append(p.vbOptions, opts)
	p.mu.Unlock()
	return nil
}

func (p *Processor) SetMode(mode ports.DenoiserMode) error {
	if p.kind != ports.ExtensionDenoiser {
		return fmt.Errorf("%s processor has no denoiser mode", p.kind)
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}

// InitCount is the number of Init calls.
func (p *Processor) InitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCount
}

func (p *Processor) AssetDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assetDir
}

// LastBackground returns the most recent background options.
func (p *Processor) LastBackground() (ports.VirtualBackgroundOptions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.vbOptions) == 0 {
		return ports.VirtualBackgroundOptions{}, false
	}
	return p.vbOptions[len(p.vbOptions)-1], true
}

func (p *Processor) LastBeauty() (domain.NormalizedBeauty, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.beauty) == 0 {
		return domain.NormalizedBeauty{}, false
	}
	return p.beauty[len(p.beauty)-1], true
}

func (p *Processor) Mode() ports.DenoiserMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// BeautyProcessor adapts a beauty Processor to ports.BeautyProcessor, whose
// SetOptions takes a different argument type.
type BeautyProcessor struct {
	*Processor
}

func (b BeautyProcessor) SetOptions(opts domain.NormalizedBeauty) error {
	if b.kind != ports.ExtensionBeauty {
		return fmt.Errorf("%s processor has no beauty options", b.kind)
	}
	b.mu.Lock()
	b.beauty = append(b.beauty, opts)
	b.mu.Unlock()
	return nil
}
