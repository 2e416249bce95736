package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/infrastructure/metrics"
)

// DiscoveryRun is the persisted header row of one aggregation run.
type DiscoveryRun struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Mode        string    `gorm:"size:16"`
	TotalUnique int
	Duplicates  int
	Failures    int
	DurationMS  int64
	CompletedAt time.Time
	CreatedAt   time.Time
}

func (DiscoveryRun) TableName() string { return "discovery_runs" }

// DiscoveredModel is one deduplicated model row of a run.
type DiscoveredModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"index;size:64"`
	Provider      string `gorm:"index;size:64"`
	ModelID       string `gorm:"size:255"`
	DisplayName   string `gorm:"size:255"`
	Task          string `gorm:"size:32"`
	Capabilities  string `gorm:"type:text"`
	ContextLength int
	Deprecated    bool
	Payload       []byte `gorm:"type:jsonb"`
	Embedding     []byte `gorm:"type:jsonb"`
	DiscoveredAt  time.Time
	CreatedAt     time.Time
}

func (DiscoveredModel) TableName() string { return "discovered_models" }

// Sink receives completed aggregates. Pushes are best-effort from the
// orchestrator's point of view: a failed push is logged and counted but
// never fails the discovery run that produced the aggregate.
type Sink interface {
	SaveRun(ctx context.Context, mode string, agg *catalog.AggregateResult, vectors map[string][]float32) error
}

// NewSink returns the GORM-backed sink when a database is configured and
// a no-op sink otherwise.
func NewSink(cfg *config.Config) (Sink, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return NoopSink{}, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&DiscoveryRun{}, &DiscoveredModel{}); err != nil {
			return nil, fmt.Errorf("migrate discovery tables: %w", err)
		}
	}
	return &GormSink{db: db}, nil
}

// GormSink writes aggregates to Postgres in one transaction per run.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink { return &GormSink{db: db} }

func (s *GormSink) SaveRun(ctx context.Context, mode string, agg *catalog.AggregateResult, vectors map[string][]float32) error {
	log := logger.GetLogger()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := DiscoveryRun{
			ID:          agg.RunID,
			Mode:        mode,
			TotalUnique: agg.TotalUnique,
			Duplicates:  agg.Duplicates,
			Failures:    len(agg.Failures),
			DurationMS:  agg.Duration.Milliseconds(),
			CompletedAt: agg.CompletedAt,
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("insert run %s: %w", agg.RunID, err)
		}

		rows := make([]DiscoveredModel, 0, len(agg.Models))
		for _, record := range agg.Models {
			row, err := toRow(agg.RunID, record, vectors[record.Key()])
			if err != nil {
				log.Warn().Err(err).
					Str("provider", record.Provider).
					Str("model", record.ID).
					Msg("skipping unserializable model row")
				continue
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert %d model rows for run %s: %w", len(rows), agg.RunID, err)
		}
		return nil
	})

	if err != nil {
		metrics.PersistencePushesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PersistencePushesTotal.WithLabelValues("ok").Inc()
	return nil
}

// RecentRuns returns run headers ordered most recent first.
func (s *GormSink) RecentRuns(ctx context.Context, limit int) ([]DiscoveryRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []DiscoveryRun
	err := s.db.WithContext(ctx).
		Order("completed_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list discovery runs: %w", err)
	}
	return runs, nil
}

func toRow(runID string, record catalog.ModelRecord, vector []float32) (DiscoveredModel, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return DiscoveredModel{}, fmt.Errorf("encode record %s: %w", record.Key(), err)
	}
	row := DiscoveredModel{
		RunID:         runID,
		Provider:      record.Provider,
		ModelID:       record.ID,
		DisplayName:   record.DisplayName,
		Task:          record.Task,
		Capabilities:  strings.Join(record.Capabilities, ","),
		ContextLength: record.ContextLength,
		Deprecated:    record.Deprecated,
		Payload:       payload,
		DiscoveredAt:  record.DiscoveredAt,
	}
	if len(vector) > 0 {
		encoded, err := json.Marshal(vector)
		if err != nil {
			return DiscoveredModel{}, fmt.Errorf("encode embedding for %s: %w", record.Key(), err)
		}
		row.Embedding = encoded
	}
	return row, nil
}

// NoopSink is used when no database is configured.
type NoopSink struct{}

func (NoopSink) SaveRun(ctx context.Context, mode string, agg *catalog.AggregateResult, vectors map[string][]float32) error {
	return nil
}
