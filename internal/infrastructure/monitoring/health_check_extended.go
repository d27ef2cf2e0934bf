package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck pings the hub's Redis.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddHistoryCheck reads one record from the call history store.
func (h *HealthChecker) AddHistoryCheck(repo ports.CallHistoryRepository, interval, timeout time.Duration) {
	h.AddCheck("history", func(ctx context.Context) (bool, error) {
		if _, err := repo.Recent(ctx, 1); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddCallCheck fails while the call sits in the error state.
func (h *HealthChecker) AddCallCheck(state func() domain.CallState, interval, timeout time.Duration) {
	h.AddCheck("call", func(ctx context.Context) (bool, error) {
		if s := state(); s == domain.CallStateError {
			return false, fmt.Errorf("call state is %s", s)
		}
		return true, nil
	}, interval, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
