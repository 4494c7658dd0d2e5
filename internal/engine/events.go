package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	cleanupKey = "eventsCleanupAt"

	// Behavioral events older than this are dropped.
	keepEventDays = 14

	// Minimum interval between cleanup sweeps.
	cleanupMinInterval = 6 * time.Hour
)

// ReportEvent appends one behavioral event, folds it into the target
// word's mastery state, and opportunistically sweeps old events. A
// failed sweep never fails the report.
func (e *Engine) ReportEvent(event types.Event) error {
	if event.Type == "" || event.Domain == "" {
		return types.NewError(types.CodeInvalidRequest, "invalid event")
	}
	event.Domain = normalizeDomain(event.Domain)
	if event.Ts <= 0 {
		event.Ts = e.nowMilli()
	}

	if _, err := e.store.AddEvent(event); err != nil {
		return types.WrapError(types.CodeDBError, "failed to record event", err)
	}

	if event.TargetID != "" {
		settings, err := e.Settings()
		if err != nil {
			return err
		}
		if err := e.userModel.ApplyEvent(event, settings.Tuning.Mastery); err != nil {
			return err
		}
	}

	if err := e.maybeCleanupEvents(); err != nil {
		e.logger.Debug("event cleanup failed", zap.Error(err))
	}
	return nil
}

// maybeCleanupEvents deletes events past the retention window, at most
// once per interval.
func (e *Engine) maybeCleanupEvents() error {
	now := e.nowMilli()

	var last int64
	if _, err := e.store.GetSetting(cleanupKey, &last); err != nil {
		return err
	}
	if last > 0 && now-last < cleanupMinInterval.Milliseconds() {
		return nil
	}

	cutoff := now - int64(keepEventDays)*24*time.Hour.Milliseconds()
	deleted, err := e.store.DeleteEventsBefore(cutoff, 0)
	if err != nil {
		return err
	}
	if err := e.store.SetSetting(cleanupKey, now); err != nil {
		return err
	}
	if deleted > 0 {
		e.logger.Info("cleaned up old events", zap.Int64("deleted", deleted))
	}
	return nil
}
