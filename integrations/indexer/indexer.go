// Package indexer persists committed contract events into a SQL database so
// they can be queried and exported after the fact.
package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"stablevault/core/events"
	"stablevault/observability"
)

const sinkName = "indexer"

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite and
// postgres.
var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// EventRecord is the persisted row for one committed event.
type EventRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Sequence    uint64    `gorm:"uniqueIndex;not null"`
	Type        string    `gorm:"index;size:64;not null"`
	VaultID     *uint64   `gorm:"index"`
	Attributes  string    `gorm:"type:text;not null"`
	Fingerprint string    `gorm:"size:64;not null"`
	RecordedAt  time.Time `gorm:"index;not null"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (EventRecord) TableName() string { return "vault_events" }

// Record is the query view of an indexed event.
type Record struct {
	ID          string            `json:"id"`
	Sequence    uint64            `json:"sequence"`
	Type        string            `json:"type"`
	VaultID     *uint64           `json:"vaultId,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Fingerprint string            `json:"fingerprint"`
	RecordedAt  time.Time         `json:"recordedAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type          string
	VaultID       *uint64
	AfterSequence uint64
	Limit         int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Store writes events into the database and answers queries over them.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time

	mu   sync.Mutex
	next uint64
}

// Open connects to the named driver and prepares the schema. Supported
// drivers are "sqlite" (a file path or sqlite DSN) and "postgres" (a libpq
// connection string or URL).
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("indexer: sqlite path required")
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle and migrates the event table.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last struct{ Max *uint64 }
	if err := db.Model(&EventRecord{}).Select("MAX(sequence) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	next := uint64(1)
	if last.Max != nil {
		next = *last.Max + 1
	}
	return &Store{db: db, logger: log, clock: time.Now, next: next}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged and counted rather than
// propagated because the event has already been committed.
func (s *Store) Emit(e events.Event) {
	if s == nil || e == nil {
		return
	}
	if _, err := s.Append(context.Background(), e); err != nil {
		observability.Events().RecordDropped(sinkName)
		s.logger.Warn("indexer: append failed",
			slog.String("event", e.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append persists e and returns the stored record.
func (s *Store) Append(ctx context.Context, e events.Event) (Record, error) {
	rendered := events.Render(e)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("indexer: encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := EventRecord{
		ID:         uuid.NewString(),
		Sequence:   s.next,
		Type:       rendered.Type,
		VaultID:    vaultID(rendered.Attributes),
		Attributes: string(attrs),
		RecordedAt: s.clock().UTC(),
	}
	row.Fingerprint = Fingerprint(row.Sequence, rendered.Type, rendered.Attributes)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Record{}, fmt.Errorf("indexer: insert: %w", err)
	}
	s.next++
	return toRecord(row)
}

// List returns events matching filter in sequence order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := s.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", filter.AfterSequence)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if filter.VaultID != nil {
		query = query.Where("vault_id = ?", *filter.VaultID)
	}
	var rows []EventRecord
	if err := query.Order("sequence ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Verify recomputes the fingerprint of rec and reports whether it matches.
func Verify(rec Record) bool {
	return Fingerprint(rec.Sequence, rec.Type, rec.Attributes) == rec.Fingerprint
}

// Fingerprint is the blake3 digest of the event content at its sequence
// number. Attributes are hashed in key order.
func Fingerprint(sequence uint64, eventType string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(strconv.FormatUint(sequence, 10))
	b.WriteByte('|')
	b.WriteString(eventType)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func toRecord(row EventRecord) (Record, error) {
	attrs := map[string]string{}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
			return Record{}, fmt.Errorf("indexer: decode attributes of %s: %w", row.ID, err)
		}
	}
	return Record{
		ID:          row.ID,
		Sequence:    row.Sequence,
		Type:        row.Type,
		VaultID:     row.VaultID,
		Attributes:  attrs,
		Fingerprint: row.Fingerprint,
		RecordedAt:  row.RecordedAt,
	}, nil
}

func vaultID(attrs map[string]string) *uint64 {
	raw, ok := attrs["vaultId"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
