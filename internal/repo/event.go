package repo

import (
	"context"
	"time"

	"skillup/internal/model"

	"gorm.io/gorm"
)

type EventRepo interface {
	// Open records the start of an engine operation with status pending.
	Open(ctx context.Context, ev *model.LedgerEvent) error
	// Close finalizes an event. errMsg is empty on success.
	Close(ctx context.Context, id int64, status model.EventStatus, stage, errMsg string) error
	// Unsettled returns events that never reached done and are older than the cutoff.
	Unsettled(ctx context.Context, before time.Time, limit int) ([]model.LedgerEvent, error)
	MarkRepaired(ctx context.Context, userID string) (int64, error)
}

type eventRepo struct{ db *gorm.DB }

func NewEventRepo(db *gorm.DB) EventRepo { return &eventRepo{db: db} }

var unsettled = []model.EventStatus{model.EventPending, model.EventDegraded, model.EventFailed}

func (r *eventRepo) Open(ctx context.Context, ev *model.LedgerEvent) error {
	ev.Status = model.EventPending
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *eventRepo) Close(ctx context.Context, id int64, status model.EventStatus, stage, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.LedgerEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "stage": stage, "error": errMsg}).Error
}

func (r *eventRepo) Unsettled(ctx context.Context, before time.Time, limit int) ([]model.LedgerEvent, error) {
	var events []model.LedgerEvent
	q := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", unsettled, before).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func (r *eventRepo) MarkRepaired(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.LedgerEvent{}).
		Where("user_id = ? AND status IN ?", userID, unsettled).
		Update("status", model.EventRepaired)
	return res.RowsAffected, res.Error
}
