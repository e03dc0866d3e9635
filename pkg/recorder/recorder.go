// pkg/recorder/recorder.go
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/opd-ai/go-dogfight/pkg/breaker"
	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/event"
	"github.com/opd-ai/go-dogfight/pkg/logging"
)

// ErrTickNotFound is returned when no snapshot was recorded for a tick.
var ErrTickNotFound = errors.New("tick not recorded")

// DefaultQueueSize is used when the configured queue size is not positive.
const DefaultQueueSize = 64

// Recorder persists snapshots to a SQL database. Snapshots are written by a
// single background worker; Record can also be called directly.
type Recorder struct {
	db      *gorm.DB
	breaker *breaker.Service
	logger  *logging.Logger

	queue    chan *entity.Snapshot
	queueMu  sync.RWMutex
	closed   bool
	dropped  atomic.Uint64
	recorded atomic.Uint64
	sub      *event.Subscription
	wg       sync.WaitGroup
}

// Open connects to the configured database and returns a running recorder.
func Open(cfg config.RecorderConfig, brk *breaker.Service, logger *logging.Logger) (*Recorder, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(db, cfg.QueueSize, brk, logger)
}

func openDB(cfg config.RecorderConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch cfg.Driver {
	case config.DriverSQLite, "":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.DSN, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		// a second connection to ":memory:" would be a different database
		sqlDB.SetMaxOpenConns(1)
		return db, nil

	case config.DriverPostgres:
		db, err := gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		return db, nil

	default:
		return nil, fmt.Errorf("unknown recorder driver %q", cfg.Driver)
	}
}

// New migrates the schema on db and starts the write worker. A nil
// breaker writes without circuit protection.
func New(db *gorm.DB, queueSize int, brk *breaker.Service, logger *logging.Logger) (*Recorder, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	r := &Recorder{
		db:      db,
		breaker: brk,
		logger:  logger,
		queue:   make(chan *entity.Snapshot, queueSize),
	}
	r.wg.Add(1)
	go r.worker()
	return r, nil
}

// Record writes snap in one transaction. Recording the same tick twice
// replaces the earlier rows.
func (r *Recorder) Record(ctx context.Context, snap *entity.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := TickRecord{
			Tick:         snap.Tick,
			Ended:        snap.Ended,
			FighterCount: len(snap.Fighters),
			RecordedAt:   time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
			return fmt.Errorf("write tick: %w", err)
		}

		if err := tx.Where("tick = ?", snap.Tick).Delete(&FighterRecord{}).Error; err != nil {
			return fmt.Errorf("clear fighters: %w", err)
		}
		if len(snap.Fighters) == 0 {
			return nil
		}

		rows := make([]FighterRecord, 0, len(snap.Fighters))
		for _, f := range snap.Fighters {
			rows = append(rows, fighterRecord(snap.Tick, f))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("write fighters: %w", err)
		}
		return nil
	})
	if err != nil {
		return logging.WrapError(err, "record snapshot at tick %d", snap.Tick)
	}

	r.recorded.Add(1)
	return nil
}

// Load reads back the snapshot recorded for tick.
func (r *Recorder) Load(ctx context.Context, tick uint64) (*entity.Snapshot, error) {
	db := r.db.WithContext(ctx)

	var rec TickRecord
	if err := db.Where("tick = ?", tick).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTickNotFound, tick)
		}
		return nil, fmt.Errorf("load tick %d: %w", tick, err)
	}

	var rows []FighterRecord
	if err := db.Where("tick = ?", tick).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load fighters of tick %d: %w", tick, err)
	}

	fighters := make([]*entity.Fighter, 0, len(rows))
	for _, row := range rows {
		fighters = append(fighters, row.fighter())
	}
	return entity.NewSnapshot(rec.Tick, rec.Ended, fighters), nil
}

// LatestTick returns the highest recorded tick.
func (r *Recorder) LatestTick(ctx context.Context) (uint64, error) {
	var rec TickRecord
	err := r.db.WithContext(ctx).Order("tick desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrTickNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("latest tick: %w", err)
	}
	return rec.Tick, nil
}

// Ping checks the database connection.
func (r *Recorder) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Attach records every snapshot published on bus.
func (r *Recorder) Attach(bus *event.Bus) {
	r.sub = bus.Subscribe(event.TickCompleted, func(ev event.Event) {
		if te, ok := ev.(*event.TickEvent); ok && te.Snapshot != nil {
			r.Enqueue(te.Snapshot)
		}
	})
}

// Enqueue hands snap to the worker. It never blocks; when the queue is
// full or the recorder is closed the snapshot is dropped.
func (r *Recorder) Enqueue(snap *entity.Snapshot) bool {
	r.queueMu.RLock()
	defer r.queueMu.RUnlock()
	if r.closed {
		return false
	}

	select {
	case r.queue <- snap:
		return true
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn(context.Background(), "recorder queue full, dropping snapshot", "tick", snap.Tick, "dropped", n)
		}
		return false
	}
}

// Dropped returns how many snapshots were discarded by Enqueue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Recorded returns how many snapshots were written.
func (r *Recorder) Recorded() uint64 {
	return r.recorded.Load()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	ctx := context.Background()

	for snap := range r.queue {
		write := func() error { return r.Record(ctx, snap) }

		var err error
		if r.breaker != nil {
			err = r.breaker.Execute(ctx, write)
		} else {
			err = write()
		}
		if err != nil {
			r.logger.Error(ctx, "failed to record snapshot", err, "tick", snap.Tick)
		}
	}
}

// Close stops accepting snapshots, drains the queue and closes the
// database.
func (r *Recorder) Close() error {
	r.queueMu.Lock()
	if r.closed {
		r.queueMu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.queueMu.Unlock()

	if r.sub != nil {
		r.sub.Cancel()
	}
	r.wg.Wait()

	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
