package rtc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/extensions"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/cache"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/circuitbreaker"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/config"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/retry"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// imageCacheTTL bounds how long a loaded background image is reused.
const imageCacheTTL = 10 * time.Minute

// Observer receives adapter outcomes for metrics. Implementations must not block.
type Observer interface {
	ObserveJoin(d time.Duration, err error)
	ObserveSubscribe(kind domain.MediaKind, outcome string, attempts int)
	ObserveScreenShare(state string)
}

type nopObserver struct{}

func (nopObserver) ObserveJoin(time.Duration, error)               {}
func (nopObserver) ObserveSubscribe(domain.MediaKind, string, int) {}
func (nopObserver) ObserveScreenShare(string)                      {}

type Option func(*Adapter)

func WithClock(c clock.Clock) Option { return func(a *Adapter) { a.clock = c } }

// WithSleeper replaces the wait used between subscribe and render retries.
func WithSleeper(s retry.Sleeper) Option { return func(a *Adapter) { a.sleep = s } }

func WithObserver(o Observer) Option { return func(a *Adapter) { a.observer = o } }

func WithStatsBreaker(cb *circuitbreaker.Breaker) Option {
	return func(a *Adapter) { a.statsBreaker = cb }
}

type subKey struct {
	uid  domain.UID
	kind domain.MediaKind
}

// Adapter drives one RTC engine on behalf of the call store. It owns every
// engine object it creates and reports everything through the event bus.
//
// Lock order: lifecycleMu, then screenMu or mediaMu, then mu. Nothing emits
// or calls into the engine while holding mu.
type Adapter struct {
	engine   ports.Engine
	registry *extensions.Registry
	bus      *events.Bus
	cfg      config.RTC
	logger   *zap.SugaredLogger

	clock        clock.Clock
	sleep        retry.Sleeper
	observer     Observer
	statsBreaker *circuitbreaker.Breaker
	renderer     *Renderer
	images       *cache.Cache[string, *ports.Image]

	lifecycleMu sync.Mutex
	screenMu    sync.Mutex
	mediaMu     sync.Mutex

	vbPreview *EffectPipeline[ports.VirtualBackgroundProcessor]
	vbMain    *EffectPipeline[ports.VirtualBackgroundProcessor]
	beauty    *EffectPipeline[ports.BeautyProcessor]
	denoiser  *EffectPipeline[ports.DenoiserProcessor]

	mu            sync.Mutex
	state         domain.CallState
	client        ports.Client
	session       context.Context
	cancelSession context.CancelFunc
	timers        []*clock.Timer

	channel     string
	localUID    domain.UID
	displayName string
	isHost      bool
	joinedAt    time.Time

	role       domain.ClientRole
	encryption domain.EncryptionConfig
	quality    domain.VideoQualityPreset
	audioOnly  bool
	dualStream bool

	mic          ports.LocalAudioTrack
	cam          ports.LocalVideoTrack
	previewCam   ports.LocalVideoTrack
	micOn        bool
	camOn        bool
	micPublished bool
	camPublished bool

	devices       domain.Devices
	removeDevices func()

	remote        map[domain.UID]*domain.Participant
	subscribed    map[subKey]bool
	speaking      map[domain.UID]bool
	activeSpeaker domain.UID
	localQuality  domain.NetworkQuality
	raisedHands   map[domain.UID]bool

	screen screenShare

	vbConfig     domain.VirtualBackgroundConfig
	vbEnabled    bool
	vbApplied    bool
	beautyOpts   domain.BeautyOptions
	beautyOn     bool
	noiseLevel   domain.NoiseSuppressionLevel
	chatEnabled  bool
	chatHostOnly bool
}

var _ ports.Actions = (*Adapter)(nil)

func NewAdapter(
	engine ports.Engine,
	registry *extensions.Registry,
	bus *events.Bus,
	cfg config.RTC,
	logger *zap.SugaredLogger,
	opts ...Option,
) *Adapter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if registry == nil {
		registry = extensions.NewRegistry(logger)
	}

	a := &Adapter{
		engine:      engine,
		registry:    registry,
		bus:         bus,
		cfg:         cfg,
		logger:      logger.With("component", "rtc_adapter"),
		clock:       clock.New(),
		observer:    nopObserver{},
		state:       domain.CallStateIdle,
		role:        domain.ClientRole(cfg.ClientRole),
		quality:     domain.QualityAuto,
		dualStream:  cfg.EnableDualStream,
		remote:      make(map[domain.UID]*domain.Participant),
		subscribed:  make(map[subKey]bool),
		speaking:    make(map[domain.UID]bool),
		raisedHands: make(map[domain.UID]bool),
		vbConfig:    domain.VirtualBackgroundConfig{Type: domain.BackgroundNone},
		beautyOpts:  domain.DefaultBeautyOptions(),
		noiseLevel:  domain.NoiseOff,
		chatEnabled: true,
	}
	a.encryption = domain.EncryptionConfig{
		Enabled: cfg.Encryption.Mode != "" && cfg.Encryption.Mode != string(domain.EncryptionNone),
		Mode:    domain.EncryptionMode(cfg.Encryption.Mode),
		Key:     cfg.Encryption.Key,
		Salt:    cfg.Encryption.Salt,
	}
	if a.role == "" {
		a.role = domain.ClientRoleBroadcaster
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.sleep == nil {
		a.sleep = retry.ClockSleeper(a.clock)
	}
	if a.statsBreaker == nil {
		a.statsBreaker = circuitbreaker.NewWithClock(circuitbreaker.DefaultConfig(), a.clock)
	}
	a.statsBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		a.logger.Infow("Stats polling breaker changed state", "from", from, "to", to)
	})
	a.images = cache.New[string, *ports.Image](imageCacheTTL, a.clock)

	if err := registry.Load(engine); err != nil {
		a.logger.Warnw("Extension registry not loaded", "error", err)
	}
	vb, _ := registry.VirtualBackground()
	beauty, _ := registry.Beauty()
	denoiser, _ := registry.Denoiser()
	a.vbPreview = NewEffectPipeline[ports.VirtualBackgroundProcessor]("virtual_background_preview", vb, cfg.AssetDir)
	a.vbMain = NewEffectPipeline[ports.VirtualBackgroundProcessor]("virtual_background", vb, cfg.AssetDir)
	a.beauty = NewEffectPipeline[ports.BeautyProcessor]("beauty", beauty, "")
	a.denoiser = NewEffectPipeline[ports.DenoiserProcessor]("denoiser", denoiser, cfg.AssetDir)

	a.renderer = newRenderer(a)
	return a
}

func (a *Adapter) Capabilities() domain.Capabilities {
	caps := []domain.Capability{
		domain.CapScreenShare,
		domain.CapDualStream,
		domain.CapEncryption,
		domain.CapChat,
		domain.CapHandRaise,
	}
	if a.vbMain.Available() {
		caps = append(caps, domain.CapVirtualBackground)
	}
	if a.beauty.Available() {
		caps = append(caps, domain.CapBeauty)
	}
	if a.denoiser.Available() {
		caps = append(caps, domain.CapNoiseSuppression)
	}
	return domain.NewCapabilities(caps...)
}

func (a *Adapter) CreateRenderer() ports.VideoRenderer {
	return a.renderer
}

func (a *Adapter) GetCallState() domain.CallState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LocalUID is empty outside a call.
func (a *Adapter) LocalUID() domain.UID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localUID
}

func (a *Adapter) GetParticipants() []domain.Participant {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Participant, 0, len(a.remote)+1)
	if a.client != nil && !a.localUID.Unassigned() {
		out = append(out, a.localParticipantLocked())
	}
	remotes := make([]domain.Participant, 0, len(a.remote))
	for _, p := range a.remote {
		remotes = append(remotes, *p)
	}
	sort.Slice(remotes, func(i, j int) bool {
		if !remotes[i].JoinedAt.Equal(remotes[j].JoinedAt) {
			return remotes[i].JoinedAt.Before(remotes[j].JoinedAt)
		}
		return remotes[i].ID < remotes[j].ID
	})
	return append(out, remotes...)
}

func (a *Adapter) localParticipantLocked() domain.Participant {
	role := domain.RoleSpeaker
	if a.isHost {
		role = domain.RoleHost
	} else if a.role == domain.ClientRoleAudience {
		role = domain.RoleAudience
	}
	return domain.Participant{
		ID:                   a.localUID,
		DisplayName:          a.displayName,
		Role:                 role,
		IsLocal:              true,
		IsHost:               a.isHost,
		AudioEnabled:         a.micOn,
		VideoEnabled:         a.camOn,
		IsScreenSharing:      a.screen.state == screenActive,
		NetworkQuality:       a.localQuality,
		IsHandRaised:         a.raisedHands[a.localUID],
		JoinedAt:             a.joinedAt,
		HasVirtualBackground: a.vbApplied,
		HasBeautyEffect:      a.beautyOn,
		HasNoiseSuppression:  a.noiseLevel != domain.NoiseOff,
	}
}

// emitLocalUpdated publishes the local participant when in a call.
func (a *Adapter) emitLocalUpdated() {
	a.mu.Lock()
	if a.client == nil || a.localUID.Unassigned() {
		a.mu.Unlock()
		return
	}
	p := a.localParticipantLocked()
	a.mu.Unlock()
	a.emit(events.ParticipantUpdated{Participant: p})
}

func (a *Adapter) emit(e events.Event) {
	if a.bus != nil {
		a.bus.Emit(e)
	}
}

// emitError reports a failure on the bus with its i18n key.
func (a *Adapter) emitError(code apperrors.ErrorCode, recoverable bool, cause error) {
	appErr := apperrors.NewCallError(code, recoverable, cause)
	a.logger.Errorw("Call operation failed", "code", code, "recoverable", recoverable, "error", cause)
	a.emit(events.NewError(uuid.NewString(), appErr, a.clock.Now()))
}

// setState moves the call state machine and emits the transition. Illegal
// and no-op transitions are dropped.
func (a *Adapter) setState(to domain.CallState, reason string) bool {
	a.mu.Lock()
	from := a.state
	if from == to || !domain.CanTransition(from, to) {
		a.mu.Unlock()
		if from != to {
			a.logger.Debugw("Call state transition ignored", "from", from, "to", to)
		}
		return false
	}
	a.state = to
	a.mu.Unlock()

	a.logger.Infow("Call state changed", "from", from, "to", to, "reason", reason)
	a.emit(events.CallStateChanged{From: from, To: to, Reason: reason})
	return true
}

// currentClient returns the joined main client, if any.
func (a *Adapter) currentClient() ports.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

func (a *Adapter) isCurrent(c ports.Client) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client != nil && a.client == c
}

// connected reports whether c is still the joined client and the engine
// considers it connected.
func (a *Adapter) connected(c ports.Client) bool {
	return a.isCurrent(c) && c.ConnectionState() == domain.ConnectionConnected
}

func (a *Adapter) sessionContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return context.Background()
	}
	return a.session
}

// afterFunc schedules fn on the adapter clock; pending timers are stopped on leave.
func (a *Adapter) afterFunc(d time.Duration, fn func()) {
	t := a.clock.AfterFunc(d, fn)
	a.mu.Lock()
	a.timers = append(a.timers, t)
	a.mu.Unlock()
}

func (a *Adapter) stopTimersLocked() {
	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
}
