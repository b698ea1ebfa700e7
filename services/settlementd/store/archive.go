package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invokeledger/core/events"
	"invokeledger/services/settlementd/models"
)

const maxListLimit = 500

// Archive persists committed settlement events so they can be listed after
// the fact. It implements events.Emitter.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu       sync.Mutex
	cursor   uint64
	listener func(models.Event)
}

// NewArchive resumes cursor numbering after the last archived event.
func NewArchive(db *gorm.DB, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var last models.Event
	err := db.Order("cursor desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, err
	}
	return &Archive{db: db, logger: logger, nowFn: time.Now, cursor: last.Cursor}, nil
}

// Emit implements events.Emitter. Storage failures are logged; the event has
// already been committed to settlement state.
func (a *Archive) Emit(evt events.Event) {
	if _, err := a.Append(context.Background(), evt); err != nil {
		a.logger.Error("archive event failed",
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append stores evt and returns its archive record.
func (a *Archive) Append(ctx context.Context, evt events.Event) (*models.Event, error) {
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	row := models.Event{
		ID:         uuid.New(),
		Cursor:     a.cursor + 1,
		Type:       rendered.Type,
		Attributes: string(attrs),
		CreatedAt:  a.nowFn().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	a.cursor = row.Cursor
	if a.listener != nil {
		a.listener(row)
	}
	return &row, nil
}

// SetListener registers fn to observe every archived record in cursor order.
// fn runs while the archive is locked and must not block.
func (a *Archive) SetListener(fn func(models.Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = fn
}

// List returns archived events with a cursor greater than after, oldest
// first. An empty eventType matches every type.
func (a *Archive) List(ctx context.Context, after uint64, eventType string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q := a.db.WithContext(ctx).Where("cursor > ?", after)
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	var rows []models.Event
	if err := q.Order("cursor asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
