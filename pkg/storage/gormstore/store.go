// Package gormstore implements the storage interfaces on a relational database through GORM.
// Postgres is the production target; tests run against sqlite.
package gormstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type accountRow struct {
	ID        string `gorm:"primaryKey;size:128"`
	Role      string `gorm:"size:32;not null"`
	Name      string `gorm:"size:255"`
	Balance   int64  `gorm:"not null;default:0"`
	Version   int64  `gorm:"not null;default:0"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

func (r accountRow) toModel() models.Account {
	return models.Account{
		ID:        r.ID,
		Role:      models.Role(r.Role),
		Name:      r.Name,
		Balance:   r.Balance,
		Version:   r.Version,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ledgerRow stores one entry. Sequence is the autoincrement primary key, so it grows in commit order
// of the insert statements. The unique index on (reference, kind, direction) rejects a second batch
// for an already settled reference.
type ledgerRow struct {
	Sequence      int64             `gorm:"primaryKey;autoIncrement"`
	EntryID       string            `gorm:"size:64;uniqueIndex;not null"`
	TransactionID string            `gorm:"size:64;index;not null"`
	AccountID     string            `gorm:"size:128;index:idx_ledger_account_sequence,priority:1;not null"`
	Role          string            `gorm:"size:32;index"`
	Direction     string            `gorm:"size:8;uniqueIndex:idx_ledger_reference,priority:3;not null"`
	Amount        int64             `gorm:"not null"`
	BalanceBefore int64             `gorm:"not null"`
	BalanceAfter  int64             `gorm:"not null"`
	Reference     string            `gorm:"size:255;uniqueIndex:idx_ledger_reference,priority:1;not null"`
	Kind          string            `gorm:"size:32;uniqueIndex:idx_ledger_reference,priority:2;not null"`
	Description   string            `gorm:"size:1024"`
	Metadata      map[string]string `gorm:"serializer:json"`
	CreatedAt     time.Time         `gorm:"index"`
}

func (ledgerRow) TableName() string { return "ledger_entries" }

func newLedgerRow(e models.LedgerEntry) ledgerRow {
	return ledgerRow{
		EntryID:       e.ID,
		TransactionID: e.TransactionID,
		AccountID:     e.AccountID,
		Role:          string(e.Role),
		Direction:     string(e.Direction),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Reference:     e.Reference,
		Kind:          string(e.Kind),
		Description:   e.Description,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt,
	}
}

func (r ledgerRow) toModel() models.LedgerEntry {
	return models.LedgerEntry{
		ID:            r.EntryID,
		TransactionID: r.TransactionID,
		AccountID:     r.AccountID,
		Role:          models.Role(r.Role),
		Direction:     models.Direction(r.Direction),
		Amount:        r.Amount,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		Reference:     r.Reference,
		Kind:          models.Kind(r.Kind),
		Description:   r.Description,
		Metadata:      r.Metadata,
		Sequence:      r.Sequence,
		CreatedAt:     r.CreatedAt,
	}
}

// Store implements storage.Storage on a GORM connection.
type Store struct {
	db *gorm.DB
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// New wraps an existing connection. The connection should be opened with TranslateError enabled
// so unique violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open boots a postgres connection using the provided configuration.
func Open(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	})

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if logg != nil {
		logg.Info(ctx, "database connection established")
	}

	return New(conn), nil
}

// Migrate creates or updates the accounts and ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&accountRow{}, &ledgerRow{}); err != nil {
		return fmt.Errorf("failed to migrate wallet tables: %w", err)
	}
	return nil
}

// Ping verifies the datasource is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
