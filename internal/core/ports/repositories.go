package ports

import (
	"context"
	"time"
)

// CallRecord summarizes one finished call.
type CallRecord struct {
	ID               string    `json:"id"`
	Channel          string    `json:"channel"`
	LocalUID         string    `json:"localUid"`
	DisplayName      string    `json:"displayName,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	EndedAt          time.Time `json:"endedAt"`
	DurationSeconds  int       `json:"durationSeconds"`
	EndReason        string    `json:"endReason"`
	PeakParticipants int       `json:"peakParticipants"`
	ErrorCount       int       `json:"errorCount"`
}

type CallHistoryRepository interface {
	Save(ctx context.Context, rec *CallRecord) error
	Recent(ctx context.Context, limit int) ([]*CallRecord, error)
	ByChannel(ctx context.Context, channel string) ([]*CallRecord, error)
}
