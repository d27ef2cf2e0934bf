package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/retry"
)

var errTrackNotReady = errors.New("remote video track not ready")

// LocalUser is accepted by AttachVideo in place of the engine-assigned uid.
const LocalUser domain.UID = "local"

type pendingAttach struct {
	seq    uint64
	cancel context.CancelFunc
}

// Renderer mounts video tracks onto host surfaces. A remote track that is
// not subscribed yet is retried in the background; attaching or detaching
// the same surface cancels the pending retry.
type Renderer struct {
	a *Adapter

	mu      sync.Mutex
	seq     uint64
	pending map[string]pendingAttach
}

var _ ports.VideoRenderer = (*Renderer)(nil)

func newRenderer(a *Adapter) *Renderer {
	return &Renderer{a: a, pending: make(map[string]pendingAttach)}
}

func (r *Renderer) AttachVideo(ctx context.Context, s ports.Surface, uid domain.UID, kind domain.VideoKind) error {
	if s == nil {
		return apperrors.NewInvalidInputError("surface is required")
	}
	r.cancel(s.ID())
	s.Clear()

	a := r.a
	if uid == LocalUser || uid == a.LocalUID() {
		return r.attachLocal(s, kind)
	}

	if err := r.playRemote(s, uid); err == nil {
		return nil
	}

	rctx, cancel := context.WithCancel(context.Background())
	seq := r.track(s.ID(), cancel)
	go func() {
		defer r.release(s.ID(), seq)
		res := retry.Run(rctx, retry.Policy{
			MaxAttempts: a.cfg.RenderRetry.MaxAttempts,
			Backoff:     retry.Linear(a.cfg.RenderRetry.Step),
		}, a.sleep, func(ctx context.Context, attempt int) error {
			err := r.playRemote(s, uid)
			if errors.Is(err, domain.ErrNotInCall) {
				return retry.Abort(err)
			}
			return err
		})
		if res.Outcome == retry.Exhausted {
			a.logger.Warnw("Remote video never became available", "uid", uid, "surface", s.ID(), "attempts", res.Attempts)
		}
	}()
	return nil
}

func (r *Renderer) attachLocal(s ports.Surface, kind domain.VideoKind) error {
	a := r.a
	a.mu.Lock()
	cam, screen := a.cam, a.screen.video
	active := a.screen.state == screenActive
	a.mu.Unlock()

	if kind == domain.VideoScreen {
		if !active || screen == nil {
			return nil
		}
		return screen.Play(s, ports.PlayOptions{Fit: "contain"})
	}
	if cam == nil {
		return nil
	}
	return cam.Play(s, ports.PlayOptions{Mirror: true, Fit: "cover"})
}

func (r *Renderer) playRemote(s ports.Surface, uid domain.UID) error {
	client := r.a.currentClient()
	if client == nil {
		return domain.ErrNotInCall
	}
	u, ok := findRemote(client.RemoteUsers(), uid)
	if !ok || u.VideoTrack == nil {
		return errTrackNotReady
	}
	if err := u.VideoTrack.Play(s, ports.PlayOptions{Fit: "cover"}); err != nil {
		return fmt.Errorf("play remote video %s: %w", uid, err)
	}
	return nil
}

func (r *Renderer) track(surfaceID string, cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.pending[surfaceID] = pendingAttach{seq: r.seq, cancel: cancel}
	return r.seq
}

func (r *Renderer) release(surfaceID string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[surfaceID]; ok && p.seq == seq {
		p.cancel()
		delete(r.pending, surfaceID)
	}
}

func (r *Renderer) cancel(surfaceID string) {
	r.mu.Lock()
	p, ok := r.pending[surfaceID]
	delete(r.pending, surfaceID)
	r.mu.Unlock()
	if ok {
		p.cancel()
	}
}

func (r *Renderer) cancelAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]pendingAttach)
	r.mu.Unlock()
	for _, p := range pending {
		p.cancel()
	}
}

// Pending reports whether a background attach is running for the surface.
func (r *Renderer) Pending(surfaceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[surfaceID]
	return ok
}

func (r *Renderer) DetachVideo(s ports.Surface) {
	if s == nil {
		return
	}
	r.cancel(s.ID())
	s.Clear()
}

// AttachPreview plays a dedicated camera track, separate from the published
// one, through the preview background processor.
func (r *Renderer) AttachPreview(ctx context.Context, s ports.Surface) error {
	if s == nil {
		return apperrors.NewInvalidInputError("surface is required")
	}
	a := r.a
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	preview := a.previewCam
	a.mu.Unlock()

	if preview == nil {
		cam, err := a.createCamera(ctx)
		if err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, err)
			return nil
		}
		preview = cam
		a.mu.Lock()
		a.previewCam = cam
		a.mu.Unlock()
	}

	if a.vbPreview.Available() {
		if err := a.vbPreview.Bind(ctx, preview); err != nil {
			a.logger.Warnw("Preview background unavailable", "error", err)
		}
	}
	if err := preview.Play(s, ports.PlayOptions{Mirror: true, Fit: "cover"}); err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("play preview: %w", err))
	}
	return nil
}

func (r *Renderer) DetachPreview(s ports.Surface) {
	a := r.a
	a.mediaMu.Lock()
	a.vbPreview.Unbind()
	a.mu.Lock()
	preview := a.previewCam
	a.previewCam = nil
	a.mu.Unlock()
	a.mediaMu.Unlock()

	if preview != nil {
		preview.Stop()
		preview.Close()
	}
	if s != nil {
		s.Clear()
	}
}
