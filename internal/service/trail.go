package service

import (
	"context"
	"strings"

	"skillup/internal/logger"
	"skillup/internal/model"
	"skillup/internal/repo"
)

// trail tracks one engine operation in the ledger event log. A failure to write the
// event never fails the operation itself.
type trail struct {
	events repo.EventRepo
	ev     model.LedgerEvent
	status model.EventStatus
	errs   []string
}

func openTrail(ctx context.Context, events repo.EventRepo, op string, t *model.Task, delta int) *trail {
	tr := &trail{
		events: events,
		ev: model.LedgerEvent{
			Op:         op,
			UserID:     t.UserID,
			PlanID:     t.PlanID,
			TaskID:     t.TaskID,
			ScoreDelta: delta,
			Stage:      "task",
		},
		status: model.EventDone,
	}
	if err := events.Open(ctx, &tr.ev); err != nil {
		logger.Warn("ledger.open.failed", "op", op, "user_id", t.UserID, "err", err)
	}
	return tr
}

func (tr *trail) reached(stage string) { tr.ev.Stage = stage }

// degrade notes a swallowed failure of a cache step.
func (tr *trail) degrade(stage string, err error) {
	if tr.status == model.EventDone {
		tr.status = model.EventDegraded
	}
	tr.errs = append(tr.errs, stage+": "+err.Error())
}

func (tr *trail) fail(stage string, err error) {
	tr.status = model.EventFailed
	tr.errs = append(tr.errs, stage+": "+err.Error())
}

func (tr *trail) close(ctx context.Context) {
	if tr.ev.ID == 0 {
		return
	}
	err := tr.events.Close(context.WithoutCancel(ctx), tr.ev.ID, tr.status, tr.ev.Stage, strings.Join(tr.errs, "; "))
	if err != nil {
		logger.Warn("ledger.close.failed", "event_id", tr.ev.ID, "err", err)
	}
}
