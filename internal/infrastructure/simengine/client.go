package simengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

// MaxStreamMessageSize mirrors the engine's data stream limit.
const MaxStreamMessageSize = 1024

// tokenWarnLead is how long before expiry token-will-expire fires.
const tokenWarnLead = 30 * time.Second

type subKey struct {
	uid  domain.UID
	kind domain.MediaKind
}

// Client is a simulated channel connection. Listener callbacks run on a
// per-client dispatcher goroutine in the order they were raised.
type Client struct {
	engine *Engine
	cfg    ports.ClientConfig

	queue *dispatcher

	mu            sync.Mutex
	listener      ports.ClientListener
	channel       string
	uid           domain.UID
	state         domain.ConnectionState
	role          domain.ClientRole
	encryption    domain.EncryptionConfig
	dualStream    bool
	volumeEnabled bool
	published     map[string]ports.LocalTrack
	subscribed    map[subKey]bool
	remoteAudio   map[domain.UID]*remoteAudioTrack
	remoteVideo   map[domain.UID]*remoteVideoTrack
	streamTypes   map[domain.UID]domain.RemoteStreamType
	sent          [][]byte
	tokenTimers   []*clock.Timer
	leaves        int
	// sampledAt is when published tracks last pushed frames.
	sampledAt time.Time
}

func newClient(e *Engine, cfg ports.ClientConfig) *Client {
	role := domain.ClientRoleBroadcaster
	if cfg.Mode == domain.ModeLive {
		role = domain.ClientRoleAudience
	}
	return &Client{
		engine:      e,
		cfg:         cfg,
		state:       domain.ConnectionDisconnected,
		role:        role,
		published:   make(map[string]ports.LocalTrack),
		subscribed:  make(map[subKey]bool),
		remoteAudio: make(map[domain.UID]*remoteAudioTrack),
		remoteVideo: make(map[domain.UID]*remoteVideoTrack),
		streamTypes: make(map[domain.UID]domain.RemoteStreamType),
	}
}

func (c *Client) Config() ports.ClientConfig { return c.cfg }

func (c *Client) SetListener(l ports.ClientListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *Client) Join(ctx context.Context, appID, channel, token string, uid domain.UID) (domain.UID, error) {
	if appID == "" {
		return "", fmt.Errorf("simengine: empty app id")
	}
	c.mu.Lock()
	if c.channel != "" {
		c.mu.Unlock()
		return "", fmt.Errorf("simengine: client already in channel %s", c.channel)
	}
	c.mu.Unlock()

	if err := c.engine.takeJoinErr(); err != nil {
		return "", err
	}

	var expiresAt time.Time
	if c.engine.tokens != nil && token != "" {
		claims, err := c.engine.tokens.Verify(token)
		if err != nil {
			return "", err
		}
		if claims.Channel != channel {
			return "", fmt.Errorf("token for channel %q: %w", claims.Channel, ports.ErrInvalidToken)
		}
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	if uid.Unassigned() {
		assigned, err := c.engine.hub.NextUID(ctx)
		if err != nil {
			return "", fmt.Errorf("assign uid: %w", err)
		}
		uid = assigned
	}

	c.mu.Lock()
	c.queue = newDispatcher()
	c.channel = channel
	c.uid = uid
	c.sampledAt = c.engine.clock.Now()
	c.mu.Unlock()

	c.setState(domain.ConnectionConnecting, "")

	if err := c.engine.hub.Join(ctx, channel, uid, c.onHubEvent); err != nil {
		c.mu.Lock()
		c.channel = ""
		c.uid = ""
		q := c.queue
		c.queue = nil
		c.mu.Unlock()
		c.resetState(domain.ConnectionDisconnected)
		q.close()
		return "", err
	}

	c.setState(domain.ConnectionConnected, "")

	members, err := c.engine.hub.Members(ctx, channel)
	if err == nil {
		for _, m := range members {
			if m.UID == uid {
				continue
			}
			m := m
			c.dispatch(func(l ports.ClientListener) { l.OnUserJoined(m.UID) })
			if m.HasAudio {
				c.dispatch(func(l ports.ClientListener) { l.OnUserPublished(m.UID, domain.MediaAudio) })
			}
			if m.HasVideo {
				c.dispatch(func(l ports.ClientListener) { l.OnUserPublished(m.UID, domain.MediaVideo) })
			}
		}
	}

	if !expiresAt.IsZero() {
		c.scheduleTokenTimers(expiresAt)
	}
	return uid, nil
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.channel == "" {
		c.mu.Unlock()
		return nil
	}
	channel, uid := c.channel, c.uid
	published := make([]ports.LocalTrack, 0, len(c.published))
	for _, t := range c.published {
		published = append(published, t)
	}
	c.stopTokenTimersLocked()
	c.mu.Unlock()

	if len(published) > 0 {
		_ = c.Unpublish(ctx, published...)
	}
	err := c.engine.hub.Leave(ctx, channel, uid, "Quit")

	c.mu.Lock()
	c.channel = ""
	c.subscribed = make(map[subKey]bool)
	c.remoteAudio = make(map[domain.UID]*remoteAudioTrack)
	c.remoteVideo = make(map[domain.UID]*remoteVideoTrack)
	c.leaves++
	q := c.queue
	c.queue = nil
	c.mu.Unlock()

	c.setStateWith(q, domain.ConnectionDisconnected, "LEAVE")
	q.close()
	return err
}

func (c *Client) Publish(ctx context.Context, tracks ...ports.LocalTrack) error {
	c.mu.Lock()
	if c.channel == "" {
		c.mu.Unlock()
		return ports.ErrClientNotJoined
	}
	if c.cfg.Mode == domain.ModeLive && c.role == domain.ClientRoleAudience {
		c.mu.Unlock()
		return fmt.Errorf("audience cannot publish: %w", ports.ErrPermissionDenied)
	}
	channel, uid := c.channel, c.uid
	var newKinds []domain.MediaKind
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if _, ok := c.published[t.ID()]; ok {
			continue
		}
		if !c.hasKindLocked(t.Kind()) {
			newKinds = append(newKinds, t.Kind())
		}
		c.published[t.ID()] = t
	}
	c.mu.Unlock()

	for _, k := range newKinds {
		if err := c.engine.hub.SetPublished(ctx, channel, uid, k, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Unpublish(ctx context.Context, tracks ...ports.LocalTrack) error {
	c.mu.Lock()
	if c.channel == "" {
		c.mu.Unlock()
		return ports.ErrClientNotJoined
	}
	channel, uid := c.channel, c.uid
	var goneKinds []domain.MediaKind
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if _, ok := c.published[t.ID()]; !ok {
			continue
		}
		delete(c.published, t.ID())
		if !c.hasKindLocked(t.Kind()) {
			goneKinds = append(goneKinds, t.Kind())
		}
	}
	c.mu.Unlock()

	for _, k := range goneKinds {
		if err := c.engine.hub.SetPublished(ctx, channel, uid, k, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) hasKindLocked(kind domain.MediaKind) bool {
	for _, t := range c.published {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

func (c *Client) Subscribe(ctx context.Context, uid domain.UID, kind domain.MediaKind) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == "" {
		return ports.ErrClientNotJoined
	}

	c.engine.mu.Lock()
	failErr := c.engine.subscribeErr[uid]
	c.engine.mu.Unlock()
	if failErr != nil {
		return failErr
	}

	members, err := c.engine.hub.Members(ctx, channel)
	if err != nil {
		return err
	}
	var member *Member
	for i := range members {
		if members[i].UID == uid {
			member = &members[i]
			break
		}
	}
	if member == nil {
		return fmt.Errorf("subscribe %s: %w", uid, ports.ErrUserNotInChannel)
	}
	if (kind == domain.MediaAudio && !member.HasAudio) || (kind == domain.MediaVideo && !member.HasVideo) {
		return fmt.Errorf("subscribe %s %s: %w", uid, kind, ports.ErrNotPublished)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[subKey{uid, kind}] = true
	if kind == domain.MediaAudio {
		if _, ok := c.remoteAudio[uid]; !ok {
			c.remoteAudio[uid] = &remoteAudioTrack{id: fmt.Sprintf("remote-audio-%s", uid)}
		}
	} else if _, ok := c.remoteVideo[uid]; !ok {
		c.remoteVideo[uid] = &remoteVideoTrack{id: fmt.Sprintf("remote-video-%s", uid)}
	}
	return nil
}

func (c *Client) RemoteUsers() []ports.RemoteUser {
	c.mu.Lock()
	channel, self := c.channel, c.uid
	c.mu.Unlock()
	if channel == "" {
		return nil
	}

	members, err := c.engine.hub.Members(context.Background(), channel)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]ports.RemoteUser, 0, len(members))
	for _, m := range members {
		if m.UID == self || !c.engine.visible(m.UID) {
			continue
		}
		u := ports.RemoteUser{UID: m.UID, HasAudio: m.HasAudio, HasVideo: m.HasVideo}
		if m.HasAudio && c.subscribed[subKey{m.UID, domain.MediaAudio}] {
			u.AudioTrack = c.remoteAudio[m.UID]
		}
		if m.HasVideo && c.subscribed[subKey{m.UID, domain.MediaVideo}] {
			u.VideoTrack = c.remoteVideo[m.UID]
		}
		users = append(users, u)
	}
	return users
}

func (c *Client) ConnectionState() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SetClientRole(ctx context.Context, role domain.ClientRole) error {
	if role != domain.ClientRoleBroadcaster && role != domain.ClientRoleAudience {
		return fmt.Errorf("simengine: unknown role %q", role)
	}
	if c.cfg.Mode != domain.ModeLive {
		return fmt.Errorf("simengine: client role requires live mode")
	}
	c.mu.Lock()
	c.role = role
	c.mu.Unlock()
	return nil
}

func (c *Client) Role() domain.ClientRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Client) SetEncryption(cfg domain.EncryptionConfig) error {
	if cfg.Mode == "" || cfg.Key == "" {
		return fmt.Errorf("simengine: encryption needs a mode and a key")
	}
	c.mu.Lock()
	c.encryption = cfg
	c.mu.Unlock()
	return nil
}

func (c *Client) Encryption() domain.EncryptionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encryption
}

func (c *Client) EnableDualStream(ctx context.Context) error {
	c.mu.Lock()
	c.dualStream = true
	c.mu.Unlock()
	return nil
}

func (c *Client) DisableDualStream(ctx context.Context) error {
	c.mu.Lock()
	c.dualStream = false
	c.mu.Unlock()
	return nil
}

func (c *Client) DualStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dualStream
}

func (c *Client) SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == "" {
		return ports.ErrClientNotJoined
	}
	c.streamTypes[uid] = t
	return nil
}

func (c *Client) RemoteStreamType(uid domain.UID) (domain.RemoteStreamType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.streamTypes[uid]
	return t, ok
}

func (c *Client) RenewToken(ctx context.Context, token string) error {
	if token == "" {
		return ports.ErrInvalidToken
	}
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == "" {
		return ports.ErrClientNotJoined
	}
	if c.engine.tokens == nil {
		return nil
	}
	claims, err := c.engine.tokens.Verify(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil {
		c.mu.Lock()
		c.stopTokenTimersLocked()
		c.mu.Unlock()
		c.scheduleTokenTimers(claims.ExpiresAt.Time)
	}
	return nil
}

func (c *Client) EnableAudioVolumeIndicator() {
	c.mu.Lock()
	c.volumeEnabled = true
	c.mu.Unlock()
}

func (c *Client) SendStreamMessage(ctx context.Context, data []byte) error {
	if len(data) > MaxStreamMessageSize {
		return fmt.Errorf("stream message too large: %d bytes", len(data))
	}
	c.mu.Lock()
	channel, uid := c.channel, c.uid
	if channel != "" {
		c.sent = append(c.sent, append([]byte(nil), data...))
	}
	c.mu.Unlock()
	if channel == "" {
		return ports.ErrClientNotJoined
	}
	return c.engine.hub.Broadcast(ctx, channel, uid, data)
}

// SentMessages returns the stream messages this client sent.
func (c *Client) SentMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *Client) Stats(ctx context.Context) (ports.ClientStats, error) {
	c.engine.mu.Lock()
	statsErr := c.engine.statsErr
	c.engine.mu.Unlock()
	if statsErr != nil {
		return ports.ClientStats{}, statsErr
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == "" {
		return ports.ClientStats{}, ports.ErrClientNotJoined
	}
	members, err := c.engine.hub.Members(ctx, channel)
	if err != nil {
		return ports.ClientStats{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stats := ports.ClientStats{
		RTT:       40,
		UserCount: len(members),
		Remote:    make(map[domain.UID]domain.RemoteStats),
	}

	now := c.engine.clock.Now()
	elapsed := now.Sub(c.sampledAt)
	if elapsed > maxCaptureBacklog {
		elapsed = maxCaptureBacklog
	}
	c.sampledAt = now
	for _, t := range c.published {
		lt, ok := t.(*LocalTrack)
		if !ok || !lt.Enabled() {
			continue
		}
		ts := sendStats(lt, lt.capture(elapsed), elapsed)
		if lt.Kind() == domain.MediaAudio {
			stats.LocalAudio = ts
		} else {
			stats.LocalVideo = ts
		}
	}
	stats.SendBitrate = stats.LocalAudio.Bitrate + stats.LocalVideo.Bitrate

	for key := range c.subscribed {
		rs := stats.Remote[key.uid]
		rs.Delay = 80
		if key.kind == domain.MediaAudio {
			rs.Audio = domain.TrackStats{Bitrate: 48}
		} else {
			rs.Video = domain.TrackStats{Bitrate: 500, Width: 640, Height: 480, FrameRate: 30}
		}
		stats.Remote[key.uid] = rs
	}
	for _, rs := range stats.Remote {
		stats.ReceiveBitrate += rs.Audio.Bitrate + rs.Video.Bitrate
	}
	return stats, nil
}

// sendStats reports what the track pushed through its RTP sender. Until a
// whole frame interval has passed the nominal encoder rate stands in.
func sendStats(lt *LocalTrack, sent int, elapsed time.Duration) domain.TrackStats {
	fps, kbps := lt.nominalRate()
	ts := domain.TrackStats{
		Codec:      lt.MimeType(),
		FramesSent: lt.Frames(),
		Bitrate:    kbps,
	}
	if sent > 0 && elapsed > 0 {
		ts.Bitrate = int(float64(sent*8) / elapsed.Seconds() / 1000)
	}
	if lt.Kind() == domain.MediaVideo {
		enc := lt.Encoder()
		ts.Width, ts.Height, ts.FrameRate = enc.Width, enc.Height, fps
	}
	return ts
}

// Channel returns the joined channel, or "" when not joined.
func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) UID() domain.UID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Published returns the ids of the tracks this client publishes.
func (c *Client) Published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.published))
	for id := range c.published {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) Subscribed(uid domain.UID, kind domain.MediaKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[subKey{uid, kind}]
}

// Leaves counts completed Leave calls.
func (c *Client) Leaves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaves
}

// RemoteAudioPlaying reports whether the subscribed audio of uid is playing.
func (c *Client) RemoteAudioPlaying(uid domain.UID) bool {
	c.mu.Lock()
	t := c.remoteAudio[uid]
	c.mu.Unlock()
	return t != nil && t.Playing()
}

func (c *Client) RemoteAudioDevice(uid domain.UID) string {
	c.mu.Lock()
	t := c.remoteAudio[uid]
	c.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.PlaybackDevice()
}

// SimulateConnectionState moves the connection and reports it to the listener.
func (c *Client) SimulateConnectionState(state domain.ConnectionState, reason string) {
	c.setState(state, reason)
}

func (c *Client) SimulateNetworkQuality(uplink, downlink domain.NetworkQuality) {
	c.dispatch(func(l ports.ClientListener) {
		l.OnNetworkQuality(ports.NetworkQualityReport{Uplink: uplink, Downlink: downlink})
	})
}

// SimulateVolume reports volume levels; it is a no-op until the volume
// indicator is enabled.
func (c *Client) SimulateVolume(levels ...ports.VolumeLevel) {
	c.mu.Lock()
	enabled := c.volumeEnabled
	c.mu.Unlock()
	if !enabled {
		return
	}
	levels = append([]ports.VolumeLevel(nil), levels...)
	c.dispatch(func(l ports.ClientListener) { l.OnVolumeIndicator(levels) })
}

func (c *Client) SimulateTokenWillExpire() {
	c.dispatch(func(l ports.ClientListener) { l.OnTokenWillExpire() })
}

func (c *Client) SimulateTokenExpired() {
	c.dispatch(func(l ports.ClientListener) { l.OnTokenExpired() })
}

// WaitIdle blocks until every queued callback has run or the timeout passes.
func (c *Client) WaitIdle(timeout time.Duration) bool {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		return true
	}
	return q.waitIdle(timeout)
}

func (c *Client) onHubEvent(ev HubEvent) {
	switch ev.Type {
	case HubUserJoined:
		c.dispatch(func(l ports.ClientListener) { l.OnUserJoined(ev.UID) })
	case HubUserLeft:
		c.mu.Lock()
		delete(c.subscribed, subKey{ev.UID, domain.MediaAudio})
		delete(c.subscribed, subKey{ev.UID, domain.MediaVideo})
		delete(c.remoteAudio, ev.UID)
		delete(c.remoteVideo, ev.UID)
		c.mu.Unlock()
		c.dispatch(func(l ports.ClientListener) { l.OnUserLeft(ev.UID, ev.Reason) })
	case HubUserPublished:
		c.dispatch(func(l ports.ClientListener) { l.OnUserPublished(ev.UID, ev.Kind) })
	case HubUserUnpublished:
		c.mu.Lock()
		delete(c.subscribed, subKey{ev.UID, ev.Kind})
		c.mu.Unlock()
		c.dispatch(func(l ports.ClientListener) { l.OnUserUnpublished(ev.UID, ev.Kind) })
	case HubStreamMessage:
		data := append([]byte(nil), ev.Data...)
		c.dispatch(func(l ports.ClientListener) { l.OnStreamMessage(ev.UID, data) })
	}
}

func (c *Client) setState(state domain.ConnectionState, reason string) {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	c.setStateWith(q, state, reason)
}

func (c *Client) resetState(state domain.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) setStateWith(q *dispatcher, state domain.ConnectionState, reason string) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	l := c.listener
	c.mu.Unlock()
	if prev == state || q == nil || l == nil {
		return
	}
	q.push(func() { l.OnConnectionStateChange(state, prev, reason) })
}

func (c *Client) dispatch(fn func(ports.ClientListener)) {
	c.mu.Lock()
	q := c.queue
	l := c.listener
	c.mu.Unlock()
	if q == nil || l == nil {
		return
	}
	q.push(func() { fn(l) })
}

func (c *Client) scheduleTokenTimers(expiresAt time.Time) {
	clk := c.engine.clock
	now := clk.Now()
	warnIn := expiresAt.Sub(now) - tokenWarnLead
	expireIn := expiresAt.Sub(now)
	if expireIn <= 0 {
		c.SimulateTokenExpired()
		return
	}
	if warnIn < 0 {
		warnIn = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenTimers = append(c.tokenTimers,
		clk.AfterFunc(warnIn, c.SimulateTokenWillExpire),
		clk.AfterFunc(expireIn, c.SimulateTokenExpired),
	)
}

func (c *Client) stopTokenTimersLocked() {
	for _, t := range c.tokenTimers {
		t.Stop()
	}
	c.tokenTimers = nil
}

// dispatcher runs callbacks one at a time on its own goroutine.
type dispatcher struct {
	mu      sync.Mutex
	pending []func()
	running bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) push(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close lets queued callbacks finish and then stops the goroutine.
func (d *dispatcher) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.pending) == 0 {
				d.running = false
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := d.pending[0]
			d.pending = d.pending[1:]
			d.running = true
			d.mu.Unlock()
			fn()
		}
	}
}

func (d *dispatcher) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		idle := len(d.pending) == 0 && !d.running
		d.mu.Unlock()
		if idle {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
