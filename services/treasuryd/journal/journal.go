package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"treasury/core/runtime"
)

// ErrDriverUnsupported is returned for journal drivers other than sqlite and
// postgres.
var ErrDriverUnsupported = errors.New("journal: unsupported driver")

// Entry is one persisted receipt.
type Entry struct {
	ID         string `gorm:"primaryKey;size:36"`
	Controller string `gorm:"index;size:64"`
	Target     string `gorm:"size:40"`
	Entrypoint string `gorm:"index;size:64"`
	Sender     string `gorm:"size:40"`
	Status     string `gorm:"size:16"`
	Code       uint16
	Error      string
	Operations int
	Digest     string    `gorm:"size:64"`
	Receipt    string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"index"`
	DurationUS int64
	CreatedAt  time.Time
}

// TableName pins the table name across drivers.
func (Entry) TableName() string { return "journal_entries" }

// Journal records every receipt produced by the runtime host.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the journal database and migrates the schema. driver is
// "sqlite" (dsn is a file path or sqlite DSN) or "postgres".
func Open(driver, dsn string, log *slog.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		resolved, err := FileDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(resolved)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriverUnsupported, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists receipt.
func (j *Journal) Record(ctx context.Context, receipt *runtime.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("journal: nil receipt")
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("journal: encode receipt: %w", err)
	}
	entry := Entry{
		ID:         receipt.ID,
		Controller: receipt.Controller,
		Target:     addressString(receipt.Target.IsZero(), receipt.Target.String()),
		Entrypoint: receipt.Entrypoint,
		Sender:     addressString(receipt.Sender.IsZero(), receipt.Sender.String()),
		Status:     receipt.Status,
		Code:       receipt.Code,
		Error:      receipt.Error,
		Operations: len(receipt.Operations),
		Digest:     receipt.Digest,
		Receipt:    string(encoded),
		StartedAt:  receipt.StartedAt.UTC(),
		DurationUS: receipt.Duration.Microseconds(),
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: insert %s: %w", receipt.ID, err)
	}
	return nil
}

// ObserveReceipt implements runtime.Observer. Journal failures never affect
// the invocation outcome; they are logged.
func (j *Journal) ObserveReceipt(ctx context.Context, receipt *runtime.Receipt) {
	if err := j.Record(context.WithoutCancel(ctx), receipt); err != nil {
		j.logger.Error("journal write failed", slog.String("id", receipt.ID), slog.String("error", err.Error()))
	}
}

// Latest returns up to limit entries, newest first. A controller filter of ""
// matches every controller.
func (j *Journal) Latest(ctx context.Context, controller string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := j.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit)
	if controller = strings.TrimSpace(controller); controller != "" {
		query = query.Where("controller = ?", controller)
	}
	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return entries, nil
}

// Get loads one entry by receipt id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	err := j.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", id, err)
	}
	return &entry, nil
}

// Each streams every entry in start order to fn.
func (j *Journal) Each(ctx context.Context, fn func(Entry) error) error {
	rows, err := j.db.WithContext(ctx).Model(&Entry{}).Order("started_at ASC").Order("id ASC").Rows()
	if err != nil {
		return fmt.Errorf("journal: scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		if err := j.db.ScanRows(rows, &entry); err != nil {
			return fmt.Errorf("journal: scan row: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

func addressString(zero bool, s string) string {
	if zero {
		return ""
	}
	return s
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN. Values that
// are already DSNs pass through.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("journal: sqlite path must be configured")
	}
	if strings.HasPrefix(trimmed, "file:") {
		return trimmed, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("journal: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("journal: create directory: %w", err)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", abs), nil
}
