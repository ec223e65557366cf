package sql

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

// verificationRow is the table layout of a VerificationRecord.
type verificationRow struct {
	Signature  string `gorm:"primaryKey;size:132"`
	ID         string `gorm:"size:36;not null"`
	Scheme     string `gorm:"size:16;not null"`
	Digest     string `gorm:"size:66;not null"`
	Signer     string `gorm:"size:42;not null;index"`
	VerifiedAt int64  `gorm:"not null;index"`
}

func (verificationRow) TableName() string {
	return "verification_records"
}

func rowFromRecord(rec *registry.VerificationRecord) *verificationRow {
	return &verificationRow{
		Signature:  rec.Signature,
		ID:         rec.ID,
		Scheme:     string(rec.Scheme),
		Digest:     rec.Digest,
		Signer:     rec.Signer,
		VerifiedAt: rec.VerifiedAt,
	}
}

func (r *verificationRow) record() *registry.VerificationRecord {
	return &registry.VerificationRecord{
		ID:         r.ID,
		Scheme:     registry.Scheme(r.Scheme),
		Digest:     r.Digest,
		Signature:  r.Signature,
		Signer:     r.Signer,
		VerifiedAt: r.VerifiedAt,
	}
}

// SQLConfig selects the driver and data source. For sqlite the DSN is a file path or
// "file::memory:?cache=shared"; for postgres it is a libpq connection string or URL.
type SQLConfig struct {
	Driver string
	DSN    string
}

// SQLRegistry is an IVerificationRegistry stored in a relational database through gorm.
type SQLRegistry struct {
	db     *gorm.DB
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

var _ registry.IVerificationRegistry = (*SQLRegistry)(nil)

func NewSQLRegistry(cfg *SQLConfig, logger *zap.Logger) (*SQLRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sql config cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql dsn cannot be empty")
	}

	var dial gorm.Dialector
	switch cfg.Driver {
	case DriverSqlite, "":
		dial = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dial = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	if cfg.Driver != DriverPostgres {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&verificationRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate verification table: %w", err)
	}

	logger.Sugar().Infow("SQL verification registry initialized", "driver", cfg.Driver)

	return &SQLRegistry{db: db, logger: logger}, nil
}

func (s *SQLRegistry) RecordVerification(rec *registry.VerificationRecord) (bool, error) {
	_, prepared, err := registry.Prepare(rec)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, registry.ErrRegistryClosed
	}

	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rowFromRecord(prepared))
	if res.Error != nil {
		return false, fmt.Errorf("failed to record verification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLRegistry) GetVerification(signatureHex string) (*registry.VerificationRecord, error) {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, registry.ErrRegistryClosed
	}

	var row verificationRow
	err = s.db.Where("signature = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load verification: %w", err)
	}
	return row.record(), nil
}

func (s *SQLRegistry) ListVerificationsBySigner(signer string) ([]*registry.VerificationRecord, error) {
	normalized, err := registry.NormalizeSigner(signer)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, registry.ErrRegistryClosed
	}

	var rows []verificationRow
	err = s.db.Where("signer = ?", normalized).
		Order("verified_at ASC").
		Order("signature ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}

	recs := make([]*registry.VerificationRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].record())
	}
	return recs, nil
}

func (s *SQLRegistry) DeleteVerification(signatureHex string) error {
	key, err := registry.CanonicalSignatureKey(signatureHex)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return registry.ErrRegistryClosed
	}

	if err := s.db.Where("signature = ?", key).Delete(&verificationRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	return nil
}

func (s *SQLRegistry) HealthCheck() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return registry.ErrRegistryClosed
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("sql health check failed: %w", err)
	}
	if !s.db.Migrator().HasTable(&verificationRow{}) {
		return fmt.Errorf("verification table not found - database may not be properly initialized")
	}
	return nil
}

func (s *SQLRegistry) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Sugar().Info("SQL verification registry closed")
	return nil
}
