package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"questchain/core/events"
)

// Open connects to the configured SQL backend and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer persists committed events to SQL so they can be queried and
// exported without replaying chain state.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New binds an indexer to db, resuming the sequence from the stored maximum.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var last uint64
	if err := db.Model(&QuestEvent{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Indexer{db: db, logger: logger, nowFn: time.Now, seq: last}, nil
}

// Emit implements events.Emitter. Write failures are logged; the chain state
// has already committed and must not be affected by the index.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || evt == nil {
		return
	}
	if err := ix.Record(context.Background(), evt); err != nil {
		ix.logger.Error("index event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt and returns once the row is written.
func (ix *Indexer) Record(ctx context.Context, evt events.Event) error {
	attrs := map[string]string{}
	if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
		attrs = payload.Event().Attributes
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	questID, _ := strconv.ParseUint(attrs["questId"], 10, 64)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	row := &QuestEvent{
		ID:         uuid.New(),
		Sequence:   ix.seq + 1,
		QuestID:    questID,
		Type:       evt.EventType(),
		Attributes: string(encoded),
		CreatedAt:  ix.nowFn().UTC(),
	}
	if err := ix.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	ix.seq = row.Sequence
	return nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	QuestID       *uint64
	Type          string
	AfterSequence uint64
	Limit         int
}

const maxListLimit = 1000

// List returns events in sequence order.
func (ix *Indexer) List(ctx context.Context, filter Filter) ([]QuestEvent, error) {
	query := ix.db.WithContext(ctx).Model(&QuestEvent{}).Order("sequence ASC")
	if filter.QuestID != nil {
		query = query.Where("quest_id = ?", *filter.QuestID)
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if filter.AfterSequence > 0 {
		query = query.Where("sequence > ?", filter.AfterSequence)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var rows []QuestEvent
	if err := query.Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeAttributes unpacks the stored attribute JSON.
func (e QuestEvent) DecodeAttributes() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(e.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
