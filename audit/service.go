// Package audit records who did what. Entries are queued in memory and
// written to audit_logs in batches by a single background worker.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/friendhub/server/model"
	"github.com/friendhub/server/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID  string
	UserID   int64 // zero means anonymous
	Action   string
	TargetID int64 // zero means none
	Detail   interface{}
	IP       string
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger

	// mu orders sends against Stop; once stopped is set nothing else is queued.
	mu      sync.RWMutex
	stopped bool
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Log enqueues an audit entry for async DB write. When the queue is full the
// entry is dropped with a warning rather than blocking the caller.
func (svc *Service) Log(entry AuditEntry) {
	var detail datatypes.JSON
	if entry.Detail != nil {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			svc.logger.Warn("audit detail not serializable",
				zap.String("action", entry.Action), zap.Error(err))
		} else {
			detail = datatypes.JSON(raw)
		}
	}
	record := &model.AuditLog{
		TraceID:  entry.TraceID,
		UserID:   optionalID(entry.UserID),
		Action:   entry.Action,
		TargetID: optionalID(entry.TargetID),
		Detail:   detail,
		IP:       entry.IP,
	}
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if svc.stopped {
		svc.logger.Warn("audit stopped, dropping entry", zap.String("action", entry.Action))
		return
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Subscribe records every domain event emitted on hc.
func (svc *Service) Subscribe(hc *hook.HookCenter) {
	hc.Register(hook.Wildcard, 100, "audit", func(ctx context.Context, ev *hook.Event) error {
		meta := hook.MetaFrom(ctx)
		entry := AuditEntry{
			TraceID:  meta.TraceID,
			UserID:   ev.UserID,
			Action:   ev.Name,
			TargetID: ev.TargetID,
			IP:       meta.IP,
		}
		if len(ev.Detail) > 0 {
			entry.Detail = ev.Detail
		}
		svc.Log(entry)
		return nil
	})
}

// Purge deletes entries created before cutoff and returns how many were removed.
func (svc *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := svc.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() {
		svc.mu.Lock()
		svc.stopped = true
		svc.mu.Unlock()
		close(svc.stopCh)
	})
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
