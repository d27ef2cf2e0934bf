package simengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

var errTrackClosed = errors.New("track closed")

func mimeFor(kind domain.MediaKind, codec domain.Codec) string {
	if kind == domain.MediaAudio {
		return webrtc.MimeTypeOpus
	}
	switch codec {
	case domain.CodecVP9:
		return webrtc.MimeTypeVP9
	case domain.CodecH264:
		return webrtc.MimeTypeH264
	case domain.CodecAV1:
		return webrtc.MimeTypeAV1
	default:
		return webrtc.MimeTypeVP8
	}
}

// LocalTrack is a captured audio or video source. It satisfies both
// ports.LocalAudioTrack and ports.LocalVideoTrack.
type LocalTrack struct {
	engine *Engine
	id     string
	source TrackSource
	kind   domain.MediaKind
	rtp    *webrtc.TrackLocalStaticSample

	mu         sync.Mutex
	enabled    bool
	stopped    bool
	closed     bool
	deviceID   string
	encoder    domain.EncoderConfig
	processors []ports.Processor
	onEnded    func()
	ended      bool
	frames     int
}

func newLocalTrack(e *Engine, id string, source TrackSource, kind domain.MediaKind, deviceID string, enc domain.EncoderConfig) (*LocalTrack, error) {
	rtp, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeFor(kind, e.codec)},
		id,
		"callkit-"+string(source),
	)
	if err != nil {
		return nil, fmt.Errorf("create rtp track: %w", err)
	}
	return &LocalTrack{
		engine:   e,
		id:       id,
		source:   source,
		kind:     kind,
		rtp:      rtp,
		enabled:  true,
		deviceID: deviceID,
		encoder:  enc,
	}, nil
}

func (t *LocalTrack) ID() string             { return t.id }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }
func (t *LocalTrack) Source() TrackSource    { return t.source }
func (t *LocalTrack) MimeType() string       { return t.rtp.Codec().MimeType }
func (t *LocalTrack) RTP() webrtc.TrackLocal { return t.rtp }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(ctx context.Context, enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTrackClosed
	}
	t.enabled = enabled
	return nil
}

func (t *LocalTrack) DeviceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceID
}

func (t *LocalTrack) SetDevice(ctx context.Context, deviceID string) error {
	kind := domain.DeviceKindAudioInput
	if t.kind == domain.MediaVideo {
		kind = domain.DeviceKindVideoInput
	}
	if t.source == SourceScreen {
		return fmt.Errorf("screen track has no device")
	}

	t.engine.mu.Lock()
	switchErr := t.engine.deviceSwitchErr
	t.engine.mu.Unlock()
	if switchErr != nil {
		return switchErr
	}
	if !t.engine.hasDevice(kind, deviceID) {
		return fmt.Errorf("%s %q: %w", kind, deviceID, ports.ErrDeviceNotFound)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTrackClosed
	}
	t.deviceID = deviceID
	return nil
}

func (t *LocalTrack) Pipe(p ports.Processor) error {
	if p == nil {
		return fmt.Errorf("nil processor")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTrackClosed
	}
	for _, existing := range t.processors {
		if existing == p {
			return nil
		}
	}
	t.processors = append(t.processors, p)
	return nil
}

func (t *LocalTrack) Unpipe(p ports.Processor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.processors {
		if existing == p {
			t.processors = append(t.processors[:i:i], t.processors[i+1:]...)
			return nil
		}
	}
	return nil
}

// Processors returns the processors currently piped into the track.
func (t *LocalTrack) Processors() []ports.Processor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.Processor(nil), t.processors...)
}

func (t *LocalTrack) Play(s ports.Surface, opts ports.PlayOptions) error {
	if s == nil {
		return fmt.Errorf("nil surface")
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errTrackClosed
	}
	s.Render(t.id, opts)
	return nil
}

func (t *LocalTrack) SetEncoderConfig(ctx context.Context, cfg domain.EncoderConfig) error {
	t.engine.mu.Lock()
	encErr := t.engine.encoderErr
	t.engine.mu.Unlock()
	if encErr != nil {
		return encErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTrackClosed
	}
	t.encoder = cfg
	return nil
}

func (t *LocalTrack) Encoder() domain.EncoderConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder
}

func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// End simulates the capture source going away. The ended callback runs on
// its own goroutine, once.
func (t *LocalTrack) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

// WriteFrame pushes one media frame through the RTP track. Disabled or
// stopped tracks drop frames.
func (t *LocalTrack) WriteFrame(data []byte, d time.Duration) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTrackClosed
	}
	live := t.enabled && !t.stopped
	if live {
		t.frames++
	}
	t.mu.Unlock()
	if !live {
		return nil
	}
	return t.rtp.WriteSample(media.Sample{Data: data, Duration: d})
}

const (
	audioFrameRate    = 50 // 20ms opus frames
	audioBitrate      = 48
	defaultFrameRate  = 15
	defaultBitrate    = 500
	maxCaptureBacklog = 2 * time.Second
)

// capture writes the frames a live source would have produced over elapsed
// and returns the bytes sent. Frame sizes follow the encoder bitrate.
// Disabled or stopped tracks send nothing.
func (t *LocalTrack) capture(elapsed time.Duration) int {
	if elapsed > maxCaptureBacklog {
		elapsed = maxCaptureBacklog
	}
	fps, kbps := t.nominalRate()
	interval := time.Second / time.Duration(fps)
	n := int(elapsed / interval)
	if n == 0 {
		return 0
	}

	size := kbps * 1000 / 8 / fps
	if size < 1 {
		size = 1
	}
	buf := make([]byte, size)
	before := t.Frames()
	for i := 0; i < n; i++ {
		if err := t.WriteFrame(buf, interval); err != nil {
			break
		}
	}
	return (t.Frames() - before) * size
}

// nominalRate is the frame rate and bitrate (kbps) the track encodes at.
func (t *LocalTrack) nominalRate() (int, int) {
	if t.kind == domain.MediaAudio {
		return audioFrameRate, audioBitrate
	}
	enc := t.Encoder()
	fps, kbps := enc.FrameRate, enc.BitrateMax
	if fps <= 0 {
		fps = defaultFrameRate
	}
	if kbps <= 0 {
		kbps = defaultBitrate
	}
	return fps, kbps
}

func (t *LocalTrack) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *LocalTrack) Close() {
	t.mu.Lock()
	t.stopped = true
	t.closed = true
	t.processors = nil
	t.mu.Unlock()
}

func (t *LocalTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *LocalTrack) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type remoteAudioTrack struct {
	id string

	mu             sync.Mutex
	playing        bool
	playbackDevice string
}

func (t *remoteAudioTrack) ID() string { return t.id }

func (t *remoteAudioTrack) Play() error {
	t.mu.Lock()
	t.playing = true
	t.mu.Unlock()
	return nil
}

func (t *remoteAudioTrack) Stop() {
	t.mu.Lock()
	t.playing = false
	t.mu.Unlock()
}

func (t *remoteAudioTrack) SetPlaybackDevice(ctx context.Context, deviceID string) error {
	t.mu.Lock()
	t.playbackDevice = deviceID
	t.mu.Unlock()
	return nil
}

// Playing reports whether Play was called since the last Stop.
func (t *remoteAudioTrack) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *remoteAudioTrack) PlaybackDevice() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playbackDevice
}

type remoteVideoTrack struct {
	id string
}

func (t *remoteVideoTrack) ID() string { return t.id }

func (t *remoteVideoTrack) Play(s ports.Surface, opts ports.PlayOptions) error {
	if s == nil {
		return fmt.Errorf("nil surface")
	}
	s.Render(t.id, opts)
	return nil
}

func (t *remoteVideoTrack) Stop() {}
