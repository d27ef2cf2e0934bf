package rtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/retry"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"
)

var errUserNotQueryable = errors.New("remote user not yet queryable")

// clientListener routes engine callbacks for one client. Callbacks from a
// client that is no longer current are dropped.
type clientListener struct {
	a      *Adapter
	client ports.Client
}

var _ ports.ClientListener = (*clientListener)(nil)

func (l *clientListener) OnUserJoined(uid domain.UID) {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.trackRemote(uid)
	client := l.client
	l.a.afterFunc(l.a.cfg.UserJoinedRecheckDelay, func() { l.a.recheckUser(client, uid) })
}

func (l *clientListener) OnUserLeft(uid domain.UID, reason string) {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.untrackRemote(uid, leaveReason(reason))
}

func (l *clientListener) OnUserPublished(uid domain.UID, kind domain.MediaKind) {
	if !l.a.isCurrent(l.client) {
		return
	}
	ctx := l.a.sessionContext()
	go l.a.subscribeWithRetry(ctx, l.client, uid, kind)
}

func (l *clientListener) OnUserUnpublished(uid domain.UID, kind domain.MediaKind) {
	a := l.a
	if !a.isCurrent(l.client) {
		return
	}

	a.mu.Lock()
	delete(a.subscribed, subKey{uid, kind})
	p, tracked := a.remote[uid]
	if tracked {
		if kind == domain.MediaAudio {
			p.AudioEnabled = false
		} else {
			p.VideoEnabled = false
		}
	}
	a.mu.Unlock()

	if kind == domain.MediaAudio {
		a.emit(events.RemoteAudioChanged{UID: uid, Enabled: false})
	} else {
		a.emit(events.RemoteVideoChanged{UID: uid, Enabled: false})
	}
}

func (l *clientListener) OnVolumeIndicator(levels []ports.VolumeLevel) {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.handleVolumes(levels)
}

func (l *clientListener) OnNetworkQuality(report ports.NetworkQualityReport) {
	a := l.a
	if !a.isCurrent(l.client) {
		return
	}
	quality := report.Uplink
	if report.Downlink < quality {
		quality = report.Downlink
	}

	a.mu.Lock()
	a.localQuality = quality
	uid := a.localUID
	a.mu.Unlock()

	a.emit(events.NetworkQualityChanged{UID: uid, Quality: quality, Uplink: report.Uplink, Downlink: report.Downlink})
}

func (l *clientListener) OnConnectionStateChange(cur, prev domain.ConnectionState, reason string) {
	a := l.a
	if !a.isCurrent(l.client) {
		return
	}
	a.logger.Infow("Connection state changed", "state", cur, "prev", prev, "reason", reason)

	switch cur {
	case domain.ConnectionDisconnected:
		a.emit(events.ConnectionStateChanged{State: cur, PrevState: prev, Reason: reason})
		// The callback runs on the client's dispatch goroutine, which the
		// engine leave waits on.
		go a.teardownDisconnected(l.client)
		return
	case domain.ConnectionReconnecting:
		if a.GetCallState() == domain.CallStateInCall {
			a.setState(domain.CallStateReconnecting, reason)
		}
	case domain.ConnectionConnected:
		if a.GetCallState() == domain.CallStateReconnecting {
			a.setState(domain.CallStateInCall, reason)
		}
	}
	a.emit(events.ConnectionStateChanged{State: cur, PrevState: prev, Reason: reason})
}

// teardownDisconnected releases a session the engine dropped, so the call
// ends the same way as a user leave and a later Join starts clean.
func (a *Adapter) teardownDisconnected(client ports.Client) {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.currentClient() != client {
		return
	}
	if err := a.leaveLocked(context.Background(), domain.ReasonDisconnected); err != nil {
		a.logger.Warnw("Teardown after disconnect failed", "error", err)
	}
}

func (l *clientListener) OnTokenWillExpire() {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.logger.Warnw("Token will expire", "in_seconds", l.a.cfg.TokenExpiryWarningSec)
	l.a.emit(events.TokenWillExpire{ExpiresIn: l.a.cfg.TokenExpiryWarningSec})
}

func (l *clientListener) OnTokenExpired() {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.logger.Errorw("Token expired")
	l.a.emit(events.TokenExpired{})
}

func (l *clientListener) OnStreamMessage(uid domain.UID, data []byte) {
	if !l.a.isCurrent(l.client) {
		return
	}
	l.a.handleStreamMessage(uid, data)
}

func leaveReason(engineReason string) string {
	switch engineReason {
	case "ServerTimeOut":
		return domain.ReasonDropped
	default:
		return domain.ReasonQuit
	}
}

// trackRemote adds uid to the roster once and announces it.
func (a *Adapter) trackRemote(uid domain.UID) {
	a.mu.Lock()
	if uid == a.localUID {
		a.mu.Unlock()
		return
	}
	if _, ok := a.remote[uid]; ok {
		a.mu.Unlock()
		return
	}
	p := &domain.Participant{
		ID:             uid,
		DisplayName:    domain.DefaultDisplayName(uid),
		Role:           domain.RoleSpeaker,
		NetworkQuality: domain.NetworkUnknown,
		JoinedAt:       a.clock.Now(),
	}
	if uid == a.screen.uid && !uid.Unassigned() {
		p.IsScreenShare = true
		p.DisplayName = a.displayName + " (screen)"
	}
	a.remote[uid] = p
	joined := *p
	a.mu.Unlock()

	a.logger.Infow("Remote user joined", "uid", uid)
	a.emit(events.ParticipantJoined{Participant: joined})
}

func (a *Adapter) untrackRemote(uid domain.UID, reason string) {
	a.mu.Lock()
	_, tracked := a.remote[uid]
	delete(a.remote, uid)
	delete(a.subscribed, subKey{uid, domain.MediaAudio})
	delete(a.subscribed, subKey{uid, domain.MediaVideo})
	delete(a.speaking, uid)
	delete(a.raisedHands, uid)
	if a.activeSpeaker == uid {
		a.activeSpeaker = ""
	}
	a.mu.Unlock()

	if !tracked {
		return
	}
	a.logger.Infow("Remote user left", "uid", uid, "reason", reason)
	a.emit(events.ParticipantLeft{UID: uid, Reason: reason})
}

func (a *Adapter) tracked(uid domain.UID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.remote[uid]
	return ok
}

func (a *Adapter) isSubscribed(uid domain.UID, kind domain.MediaKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subscribed[subKey{uid, kind}]
}

func findRemote(users []ports.RemoteUser, uid domain.UID) (ports.RemoteUser, bool) {
	for _, u := range users {
		if u.UID == uid {
			return u, true
		}
	}
	return ports.RemoteUser{}, false
}

// subscribeWithRetry subscribes to a freshly published track. The engine
// may announce a publication before the user is queryable, so each attempt
// re-reads the remote user list. The run stops early when the client is no
// longer connected, or when a user the adapter tracked during the run has
// since left. A user not tracked yet keeps being retried, since its join may
// still be in flight.
func (a *Adapter) subscribeWithRetry(ctx context.Context, client ports.Client, uid domain.UID, kind domain.MediaKind) {
	policy := retry.Policy{
		MaxAttempts: a.cfg.SubscribeRetry.MaxAttempts,
		Backoff:     retry.Stepped(a.cfg.SubscribeRetry.InitialDelay, a.cfg.SubscribeRetry.Step),
		Guard:       func() bool { return a.connected(client) },
	}

	seen := a.tracked(uid)
	gone := func() bool {
		if a.tracked(uid) {
			seen = true
			return false
		}
		return seen
	}

	ctx, span := tracing.TraceSubscribe(ctx, string(uid), string(kind))
	res := retry.Run(ctx, policy, a.sleep, func(ctx context.Context, attempt int) error {
		if gone() {
			return retry.Abort(ports.ErrUserNotInChannel)
		}
		if _, ok := findRemote(client.RemoteUsers(), uid); !ok {
			a.logger.Debugw("Remote user not queryable yet", "uid", uid, "kind", kind, "attempt", attempt+1)
			return errUserNotQueryable
		}
		if err := client.Subscribe(ctx, uid, kind); err != nil {
			if errors.Is(err, ports.ErrUserNotInChannel) && gone() {
				return retry.Abort(err)
			}
			return err
		}
		return nil
	})

	tracing.FinishRetry(span, res.Outcome.String(), res.Attempts, res.Err)
	a.observer.ObserveSubscribe(kind, res.Outcome.String(), res.Attempts)

	switch res.Outcome {
	case retry.Succeeded:
		a.onSubscribed(client, uid, kind)
	case retry.Aborted:
		a.logger.Debugw("Subscribe abandoned", "uid", uid, "kind", kind, "attempts", res.Attempts, "reason", res.Err)
	case retry.Exhausted:
		a.logger.Warnw("Subscribe retries exhausted", "uid", uid, "kind", kind, "attempts", res.Attempts, "error", res.Err)
		a.emitError(apperrors.ErrCodeSubscribeFailed, true, fmt.Errorf("subscribe %s %s: %w", uid, kind, res.Err))
	}
}

// onSubscribed records a successful subscription and announces it once per
// publication.
func (a *Adapter) onSubscribed(client ports.Client, uid domain.UID, kind domain.MediaKind) {
	key := subKey{uid, kind}

	a.mu.Lock()
	if a.client != client || a.subscribed[key] {
		a.mu.Unlock()
		return
	}
	a.subscribed[key] = true
	var updated domain.Participant
	p, tracked := a.remote[uid]
	if tracked {
		if kind == domain.MediaAudio {
			p.AudioEnabled = true
		} else {
			p.VideoEnabled = true
		}
		updated = *p
	}
	speaker := a.devices.SelectedSpeakerID
	a.mu.Unlock()

	if kind == domain.MediaAudio {
		if u, ok := findRemote(client.RemoteUsers(), uid); ok && u.AudioTrack != nil {
			if speaker != "" {
				if err := u.AudioTrack.SetPlaybackDevice(context.Background(), speaker); err != nil {
					a.logger.Warnw("Failed to route remote audio", "uid", uid, "error", err)
				}
			}
			if err := u.AudioTrack.Play(); err != nil {
				a.logger.Warnw("Failed to play remote audio", "uid", uid, "error", err)
			}
		}
		a.emit(events.RemoteAudioChanged{UID: uid, Enabled: true})
	} else {
		a.emit(events.RemoteVideoChanged{UID: uid, Enabled: true})
	}
	a.logger.Debugw("Subscribed to remote track", "uid", uid, "kind", kind)

	if tracked {
		a.emit(events.ParticipantUpdated{Participant: updated})
	}
}

// subscribeMissing makes one subscription pass over u's published media.
func (a *Adapter) subscribeMissing(ctx context.Context, client ports.Client, u ports.RemoteUser) {
	for _, kind := range []domain.MediaKind{domain.MediaAudio, domain.MediaVideo} {
		has := u.HasAudio
		if kind == domain.MediaVideo {
			has = u.HasVideo
		}
		if !has || a.isSubscribed(u.UID, kind) {
			continue
		}
		if err := client.Subscribe(ctx, u.UID, kind); err != nil {
			a.logger.Debugw("Catch-up subscribe failed", "uid", u.UID, "kind", kind, "error", err)
			continue
		}
		a.onSubscribed(client, u.UID, kind)
	}
}

// recheckUser runs shortly after a user joins to pick up publications whose
// events were missed.
func (a *Adapter) recheckUser(client ports.Client, uid domain.UID) {
	if !a.connected(client) || !a.tracked(uid) {
		return
	}
	if u, ok := findRemote(client.RemoteUsers(), uid); ok {
		a.subscribeMissing(a.sessionContext(), client, u)
	}
}

// reconcile runs once after join: every user the engine reports is tracked
// and subscribed.
func (a *Adapter) reconcile(client ports.Client) {
	if !a.connected(client) {
		return
	}
	ctx := a.sessionContext()
	for _, u := range client.RemoteUsers() {
		a.trackRemote(u.UID)
		a.subscribeMissing(ctx, client, u)
	}
}

// handleVolumes derives speaking flags for tracked remote users and the
// loudest active speaker.
func (a *Adapter) handleVolumes(levels []ports.VolumeLevel) {
	threshold := a.cfg.SpeakingThreshold

	var changed []events.SpeakingChanged
	var updates []domain.Participant
	loudest, loudestLevel := domain.UID(""), -1

	a.mu.Lock()
	for _, lv := range levels {
		p, ok := a.remote[lv.UID]
		if !ok {
			continue
		}
		speaking := lv.Level > threshold
		p.SpeakingVolume = lv.Level
		if speaking && lv.Level > loudestLevel {
			loudest, loudestLevel = lv.UID, lv.Level
		}
		if a.speaking[lv.UID] == speaking {
			continue
		}
		a.speaking[lv.UID] = speaking
		p.IsSpeaking = speaking
		changed = append(changed, events.SpeakingChanged{UID: lv.UID, IsSpeaking: speaking, Volume: lv.Level})
		updates = append(updates, *p)
	}
	newSpeaker := loudest != "" && loudest != a.activeSpeaker
	if newSpeaker {
		a.activeSpeaker = loudest
	}
	a.mu.Unlock()

	for i, ev := range changed {
		a.emit(ev)
		a.emit(events.ParticipantUpdated{Participant: updates[i]})
	}
	if newSpeaker {
		a.emit(events.ActiveSpeakerChanged{UID: loudest})
	}
}
