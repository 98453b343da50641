package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrSummaryTooShort = errors.New("summary too short")
)

// Options tune the engine. Zero values fall back to the defaults below.
type Options struct {
	// ConversationTTL is how long turns stay in the ring. Default 48h.
	ConversationTTL time.Duration
	// StaleMutationThreshold is how many graph mutations after a summary
	// was generated before it counts as stale. Default 5.
	StaleMutationThreshold int
	// StaleTurnThreshold is how many new turns after generation before the
	// summary counts as stale. Default 10.
	StaleTurnThreshold int
}

func (o Options) withDefaults() Options {
	if o.ConversationTTL <= 0 {
		o.ConversationTTL = 48 * time.Hour
	}
	if o.StaleMutationThreshold <= 0 {
		o.StaleMutationThreshold = 5
	}
	if o.StaleTurnThreshold <= 0 {
		o.StaleTurnThreshold = 10
	}
	return o
}

// Engine is the embedded knowledge graph shared by all sessions of a user.
// Writes serialize through a per-user exclusive lock; reads take the shared
// side. All mutations flush to sqlite inside the locked region.
type Engine struct {
	db   *gorm.DB
	opts Options

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// Open initializes the sqlite store at path and migrates the schema.
func Open(path string, opts Options) (*Engine, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create memory db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access memory db: %w", err)
	}
	sqlDB.Exec("PRAGMA foreign_keys = ON;")
	sqlDB.Exec("PRAGMA journal_mode = WAL;")

	if err := db.AutoMigrate(
		&memmodel.Entity{},
		&memmodel.Observation{},
		&memmodel.Relation{},
		&memmodel.Summary{},
		&memmodel.Turn{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate memory schema: %w", err)
	}

	return &Engine{
		db:    db,
		opts:  opts.withDefaults(),
		locks: make(map[string]*sync.RWMutex),
	}, nil
}

// Close releases the underlying sqlite handle.
func (e *Engine) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// lockFor returns the lock guarding a single user's slice of the store.
func (e *Engine) lockFor(userID string) *sync.RWMutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.RWMutex{}
		e.locks[userID] = l
	}
	return l
}

// StartCleanup runs the TTL sweep until ctx is cancelled.
func (e *Engine) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.CleanupExpired()
				if err != nil {
					log.Printf("[memory] cleanup sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("[memory] cleanup sweep removed %d expired turns", n)
				}
			}
		}
	}()
}
