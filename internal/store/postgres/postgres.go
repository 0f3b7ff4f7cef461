package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/card-duel-backend/internal/store"
)

// Account is the persisted balance and rating of one player.
type Account struct {
	ID        string `gorm:"primaryKey;size:64"`
	Tokens    int64  `gorm:"not null;default:0"`
	Rating    int    `gorm:"not null;default:1000"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchRecord is one finished match; MatchID doubles as the idempotency key.
type MatchRecord struct {
	MatchID   string  `gorm:"primaryKey;size:64"`
	Mode      string  `gorm:"size:8;not null"`
	Reason    string  `gorm:"size:16;not null"`
	WinnerID  *string `gorm:"size:64;index"`
	LoserID   *string `gorm:"size:64;index"`
	PlayerA   string  `gorm:"size:64;not null"`
	PlayerB   string  `gorm:"size:64;not null"`
	FinalHPA  int
	FinalHPB  int
	Pot       int64
	Rounds    int
	EndedAt   time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Store implements store.Accounts on Postgres through GORM over a pgx pool.
type Store struct {
	db   *gorm.DB
	sql  *sql.DB
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ store.Accounts = (*Store)(nil)

func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("gorm open: %w", err), closeAll(sqlDB, pool))
	}

	if err := db.WithContext(ctx).AutoMigrate(&Account{}, &MatchRecord{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), closeAll(sqlDB, pool))
	}

	log.Info("postgres store ready")
	return &Store{db: db, sql: sqlDB, pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	return closeAll(s.sql, s.pool)
}

func closeAll(sqlDB *sql.DB, pool *pgxpool.Pool) error {
	err := sqlDB.Close()
	pool.Close()
	return err
}

func (s *Store) EnsureAccount(ctx context.Context, accountID string, startingTokens int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Account{ID: accountID, Tokens: startingTokens, Rating: store.DefaultRating})
	if res.Error != nil {
		return false, fmt.Errorf("ensure account %s: %w", accountID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetTokens(ctx context.Context, accountID string) (int64, error) {
	acc, err := s.find(ctx, accountID, "tokens")
	if err != nil {
		return 0, err
	}
	return acc.Tokens, nil
}

func (s *Store) DeductTokens(ctx context.Context, accountID string, amount int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ? AND tokens >= ?", accountID, amount).
		UpdateColumn("tokens", gorm.Expr("tokens - ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("deduct tokens %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	// Zero rows: either the balance was short or the account is missing.
	if _, err := s.find(ctx, accountID, "id"); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) AddTokens(ctx context.Context, accountID string, amount int64) error {
	return s.bump(ctx, accountID, "tokens", gorm.Expr("tokens + ?", amount))
}

func (s *Store) GetRating(ctx context.Context, accountID string) (int, error) {
	acc, err := s.find(ctx, accountID, "rating")
	if err != nil {
		return 0, err
	}
	return acc.Rating, nil
}

func (s *Store) AddRatingDelta(ctx context.Context, accountID string, delta int) error {
	return s.bump(ctx, accountID, "rating", gorm.Expr("GREATEST(rating + ?, 0)", delta))
}

func (s *Store) RecordMatchResult(ctx context.Context, r store.MatchResult) error {
	rec := MatchRecord{
		MatchID:  r.MatchID,
		Mode:     string(r.Mode),
		Reason:   r.Reason,
		WinnerID: nullable(r.WinnerID),
		LoserID:  nullable(r.LoserID),
		PlayerA:  r.PlayerA,
		PlayerB:  r.PlayerB,
		FinalHPA: r.FinalHPA,
		FinalHPB: r.FinalHPB,
		Pot:      r.Pot,
		Rounds:   r.Rounds,
		EndedAt:  r.EndedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("record match %s: %w", r.MatchID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Debug("match result already recorded", zap.String("match_id", r.MatchID))
	}
	return nil
}

func (s *Store) find(ctx context.Context, accountID, column string) (Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Select(column).Where("id = ?", accountID).Take(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return acc, store.ErrAccountNotFound
	}
	if err != nil {
		return acc, fmt.Errorf("load account %s: %w", accountID, err)
	}
	return acc, nil
}

func (s *Store) bump(ctx context.Context, accountID, column string, expr clause.Expr) error {
	res := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", accountID).
		UpdateColumn(column, expr)
	if res.Error != nil {
		return fmt.Errorf("update %s for %s: %w", column, accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
