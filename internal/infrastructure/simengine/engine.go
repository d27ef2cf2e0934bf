// Package simengine is an in-memory RTC engine. It behaves like the real SDK
// where the adapter cares: callbacks arrive asynchronously, remote users can
// lag behind their publish notifications, and capture sources can vanish.
package simengine

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

type TrackSource string

const (
	SourceMicrophone TrackSource = "microphone"
	SourceCamera     TrackSource = "camera"
	SourceScreen     TrackSource = "screen"
)

type Option func(*Engine)

func WithHub(h Hub) Option { return func(e *Engine) { e.hub = h } }

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.logger = l } }

func WithTokenIssuer(t *TokenIssuer) Option { return func(e *Engine) { e.tokens = t } }

func WithDevices(devs []domain.DeviceInfo) Option {
	return func(e *Engine) { e.devices = append([]domain.DeviceInfo(nil), devs...) }
}

// WithVideoCodec sets the codec local video tracks are created with.
func WithVideoCodec(c domain.Codec) Option { return func(e *Engine) { e.codec = c } }

// DefaultDevices is the device set a fresh engine reports.
func DefaultDevices() []domain.DeviceInfo {
	return []domain.DeviceInfo{
		{ID: "default", Label: "Default Microphone", Kind: domain.DeviceKindAudioInput},
		{ID: "mic-usb-0001", Label: "USB Microphone", Kind: domain.DeviceKindAudioInput},
		{ID: "cam-front-0001", Label: "Front Camera", Kind: domain.DeviceKindVideoInput},
		{ID: "cam-back-0002", Label: "Back Camera", Kind: domain.DeviceKindVideoInput},
		{ID: "default", Label: "Default Speaker", Kind: domain.DeviceKindAudioOutput},
	}
}

type Engine struct {
	hub    Hub
	clock  clock.Clock
	logger *zap.SugaredLogger
	tokens *TokenIssuer
	codec  domain.Codec

	trackSeq    atomic.Uint64
	listenerSeq atomic.Uint64

	mu              sync.Mutex
	devices         []domain.DeviceInfo
	deviceListeners map[uint64]func()
	extensions      map[ports.ExtensionKind]ports.Extension
	clients         []*Client
	tracks          []*LocalTrack

	// fault knobs
	hidden          map[domain.UID]int
	joinErr         error
	screenDenied    bool
	trackErr        map[TrackSource]error
	deviceSwitchErr error
	encoderErr      error
	statsErr        error
	imageErr        map[string]error
	subscribeErr    map[domain.UID]error
}

func New(opts ...Option) *Engine {
	e := &Engine{
		hub:             NewMemoryHub(),
		clock:           clock.New(),
		codec:           domain.CodecVP8,
		devices:         DefaultDevices(),
		deviceListeners: make(map[uint64]func()),
		extensions:      make(map[ports.ExtensionKind]ports.Extension),
		hidden:          make(map[domain.UID]int),
		trackErr:        make(map[TrackSource]error),
		imageErr:        make(map[string]error),
		subscribeErr:    make(map[domain.UID]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop().Sugar()
	}
	return e
}

func (e *Engine) Hub() Hub { return e.hub }

func (e *Engine) CreateClient(cfg ports.ClientConfig) (ports.Client, error) {
	switch cfg.Mode {
	case domain.ModeRTC, domain.ModeLive:
	default:
		return nil, fmt.Errorf("simengine: unknown mode %q", cfg.Mode)
	}
	c := newClient(e, cfg)
	e.mu.Lock()
	e.clients = append(e.clients, c)
	e.mu.Unlock()
	return c, nil
}

func (e *Engine) EnumerateDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.DeviceInfo(nil), e.devices...), nil
}

func (e *Engine) CreateMicrophoneTrack(ctx context.Context, cfg ports.MicrophoneConfig) (ports.LocalAudioTrack, error) {
	deviceID, err := e.resolveDevice(SourceMicrophone, domain.DeviceKindAudioInput, cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	return e.newTrack(SourceMicrophone, domain.MediaAudio, deviceID, domain.EncoderConfig{})
}

func (e *Engine) CreateCameraTrack(ctx context.Context, cfg ports.CameraConfig) (ports.LocalVideoTrack, error) {
	deviceID, err := e.resolveDevice(SourceCamera, domain.DeviceKindVideoInput, cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	return e.newTrack(SourceCamera, domain.MediaVideo, deviceID, cfg.Encoder)
}

func (e *Engine) CreateScreenTrack(ctx context.Context, cfg ports.ScreenConfig) (ports.LocalVideoTrack, ports.LocalAudioTrack, error) {
	e.mu.Lock()
	denied := e.screenDenied
	failErr := e.trackErr[SourceScreen]
	e.mu.Unlock()

	if denied {
		return nil, nil, fmt.Errorf("screen capture: %w", ports.ErrPermissionDenied)
	}
	if failErr != nil {
		return nil, nil, failErr
	}

	video, err := e.newTrack(SourceScreen, domain.MediaVideo, "screen", cfg.Encoder)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.WithAudio {
		return video, nil, nil
	}
	audio, err := e.newTrack(SourceScreen, domain.MediaAudio, "screen", domain.EncoderConfig{})
	if err != nil {
		video.Close()
		return nil, nil, err
	}
	return video, audio, nil
}

func (e *Engine) RegisterExtension(ext ports.Extension) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.extensions[ext.Kind()]; ok {
		return fmt.Errorf("simengine: extension %s already registered", ext.Kind())
	}
	e.extensions[ext.Kind()] = ext
	return nil
}

func (e *Engine) OnDeviceChange(fn func()) func() {
	id := e.listenerSeq.Add(1)
	e.mu.Lock()
	e.deviceListeners[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.deviceListeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) LoadImage(ctx context.Context, rawURL string) (*ports.Image, error) {
	e.mu.Lock()
	failErr := e.imageErr[rawURL]
	e.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("simengine: bad image url %q", rawURL)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return &ports.Image{URL: rawURL, Width: 1280, Height: 720}, nil
}

// SetDevices replaces the device list and notifies hot-plug listeners.
func (e *Engine) SetDevices(devs []domain.DeviceInfo) {
	e.mu.Lock()
	e.devices = append([]domain.DeviceInfo(nil), devs...)
	e.mu.Unlock()
	e.fireDeviceChange()
}

// RemoveDevice drops a device and notifies hot-plug listeners.
func (e *Engine) RemoveDevice(kind domain.DeviceKind, id string) {
	e.mu.Lock()
	kept := e.devices[:0:0]
	for _, d := range e.devices {
		if d.Kind == kind && d.ID == id {
			continue
		}
		kept = append(kept, d)
	}
	e.devices = kept
	e.mu.Unlock()
	e.fireDeviceChange()
}

func (e *Engine) DeviceListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deviceListeners)
}

func (e *Engine) fireDeviceChange() {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.deviceListeners))
	for id := range e.deviceListeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.deviceListeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		go fn()
	}
}

// Clients returns every client created so far, oldest first.
func (e *Engine) Clients() []*Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Client(nil), e.clients...)
}

// Tracks returns every local track created so far, oldest first.
func (e *Engine) Tracks() []*LocalTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*LocalTrack(nil), e.tracks...)
}

func (e *Engine) Extension(kind ports.ExtensionKind) (ports.Extension, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ext, ok := e.extensions[kind]
	return ext, ok
}

// HideUser makes uid invisible to the next n RemoteUsers queries, as if the
// engine had announced a publish before the user became queryable.
func (e *Engine) HideUser(uid domain.UID, n int) {
	e.mu.Lock()
	e.hidden[uid] = n
	e.mu.Unlock()
}

// FailNextJoin makes the next Client.Join return err.
func (e *Engine) FailNextJoin(err error) {
	e.mu.Lock()
	e.joinErr = err
	e.mu.Unlock()
}

func (e *Engine) DenyScreenCapture(deny bool) {
	e.mu.Lock()
	e.screenDenied = deny
	e.mu.Unlock()
}

// FailTracks makes track creation for source fail with err until cleared with nil.
func (e *Engine) FailTracks(source TrackSource, err error) {
	e.mu.Lock()
	if err == nil {
		delete(e.trackErr, source)
	} else {
		e.trackErr[source] = err
	}
	e.mu.Unlock()
}

func (e *Engine) FailDeviceSwitch(err error) {
	e.mu.Lock()
	e.deviceSwitchErr = err
	e.mu.Unlock()
}

func (e *Engine) FailEncoderConfig(err error) {
	e.mu.Lock()
	e.encoderErr = err
	e.mu.Unlock()
}

func (e *Engine) FailStats(err error) {
	e.mu.Lock()
	e.statsErr = err
	e.mu.Unlock()
}

func (e *Engine) FailImage(url string, err error) {
	e.mu.Lock()
	e.imageErr[url] = err
	e.mu.Unlock()
}

// FailSubscribe makes subscriptions to uid fail with err until cleared with nil.
func (e *Engine) FailSubscribe(uid domain.UID, err error) {
	e.mu.Lock()
	if err == nil {
		delete(e.subscribeErr, uid)
	} else {
		e.subscribeErr[uid] = err
	}
	e.mu.Unlock()
}

func (e *Engine) takeJoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.joinErr
	e.joinErr = nil
	return err
}

// visible consumes one hide credit for uid.
func (e *Engine) visible(uid domain.UID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.hidden[uid]
	if !ok {
		return true
	}
	if n <= 1 {
		delete(e.hidden, uid)
	} else {
		e.hidden[uid] = n - 1
	}
	return false
}

func (e *Engine) resolveDevice(source TrackSource, kind domain.DeviceKind, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackErr[source]; err != nil {
		return "", err
	}
	for _, d := range e.devices {
		if d.Kind == kind && (id == "" || d.ID == id) {
			return d.ID, nil
		}
	}
	if id != "" {
		return "", fmt.Errorf("%s %q: %w", kind, id, ports.ErrDeviceNotFound)
	}
	return "", fmt.Errorf("no %s: %w", kind, ports.ErrDeviceNotFound)
}

func (e *Engine) hasDevice(kind domain.DeviceKind, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.devices {
		if d.Kind == kind && d.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) newTrack(source TrackSource, kind domain.MediaKind, deviceID string, enc domain.EncoderConfig) (*LocalTrack, error) {
	id := fmt.Sprintf("%s-%s-%d", source, kind, e.trackSeq.Add(1))
	t, err := newLocalTrack(e, id, source, kind, deviceID, enc)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.tracks = append(e.tracks, t)
	e.mu.Unlock()
	return t, nil
}
