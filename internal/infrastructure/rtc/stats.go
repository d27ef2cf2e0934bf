package rtc

import (
	"context"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/circuitbreaker"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/utils"
)

// GetStats never fails: outside a call it returns zeros, and when the engine
// cannot report it returns zeros plus the call duration.
func (a *Adapter) GetStats(ctx context.Context) domain.CallStats {
	a.mu.Lock()
	client, joinedAt := a.client, a.joinedAt
	a.mu.Unlock()

	if client == nil {
		return domain.CallStats{}
	}
	duration := utils.WholeSeconds(joinedAt, a.clock.Now())

	cs, err := circuitbreaker.Call(ctx, a.statsBreaker, func(ctx context.Context) (ports.ClientStats, error) {
		return client.Stats(ctx)
	})
	if err != nil {
		a.logger.Debugw("Stats unavailable", "error", err)
		return domain.CallStats{Duration: duration}
	}

	stats := domain.CallStats{
		Duration:       duration,
		SendBitrate:    cs.SendBitrate,
		ReceiveBitrate: cs.ReceiveBitrate,
		RTT:            cs.RTT,
		PacketLoss:     cs.PacketLoss,
		UserCount:      cs.UserCount,
		LocalAudio:     cs.LocalAudio,
		LocalVideo:     cs.LocalVideo,
	}
	if len(cs.Remote) > 0 {
		stats.Remote = make(map[domain.UID]domain.RemoteStats, len(cs.Remote))
		for uid, rs := range cs.Remote {
			stats.Remote[uid] = rs
		}
	}
	return stats
}
