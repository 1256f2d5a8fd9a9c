package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NotifyJobID is the job identifier QueueNotifier enqueues deliveries under.
const NotifyJobID = "grants.notify"

// QueueNotifier hands notices to a job queue instead of delivering inline.
// Duplicate suppression rides on the idempotency key: one key per
// (grant, notice kind, threshold), so a redelivered enqueue collapses.
type QueueNotifier struct {
	enqueuer JobEnqueuer
	logger   Logger
}

func NewQueueNotifier(enqueuer JobEnqueuer, logger Logger) *QueueNotifier {
	return &QueueNotifier{enqueuer: enqueuer, logger: logger}
}

func (n *QueueNotifier) Notify(ctx context.Context, notice Notice) error {
	if n == nil || n.enqueuer == nil {
		return fmt.Errorf("core: queue notifier has no enqueuer")
	}
	msg := &JobExecutionMessage{
		JobID: NotifyJobID,
		Parameters: map[string]any{
			"guild_id":          notice.Key.GuildID,
			"subject_id":        notice.Key.SubjectID,
			"kind_id":           notice.Key.KindID,
			"notice_kind":       string(notice.Kind),
			"channel_id":        notice.ChannelID,
			"threshold_minutes": notice.ThresholdMinutes,
			"remaining_ms":      notice.Remaining.Milliseconds(),
		},
		IdempotencyKey: noticeIdempotencyKey(notice),
		DedupPolicy:    "drop",
	}
	if err := n.enqueuer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("core: notice enqueue failed: %w", err)
	}
	return nil
}

// noticeIdempotencyKey is deterministic across processes: the same warning
// for the same grant always lands on the same key. Expired notices get a
// random suffix since a key can expire more than once over its lifetime of
// set/clear cycles.
func noticeIdempotencyKey(notice Notice) string {
	parts := []string{
		NotifyJobID,
		notice.Key.GuildID,
		notice.Key.SubjectID,
		notice.Key.KindID,
		string(notice.Kind),
	}
	if notice.Kind == NoticeKindWarning {
		parts = append(parts, fmt.Sprintf("t%d", notice.ThresholdMinutes))
	} else {
		parts = append(parts, uuid.NewString())
	}
	return strings.Join(parts, ":")
}

var _ Notifier = (*QueueNotifier)(nil)
