package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickvest/vesting-adapter/pkg/model"
)

// Store defines the contract for persisting and caching ledger state. The
// in-memory ledger is authoritative at runtime; the store is its durable
// journal and the source for restart hydration.
type Store interface {
	RecordTokenEvent(ctx context.Context, eventType string, tok model.Token) error
	UpsertTokenSnapshot(ctx context.Context, tok model.Token) error
	UpdatePoolSnapshot(ctx context.Context, status model.PoolStatus) error
	LoadPoolSnapshot(ctx context.Context) (*model.PoolStatus, error)
	LoadTokens(ctx context.Context) ([]model.Token, error)
	RecordReconciliationGap(ctx context.Context, tok model.Token, reason string) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordTokenEvent appends an immutable row to the vesting.token_event journal.
func (s *HybridStore) RecordTokenEvent(ctx context.Context, eventType string, tok model.Token) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO vesting.token_event (
			event_type, token_id, owner_address,
			amount, maturity, status, tx_id, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, eventType, tok.ID, tok.Owner,
		tok.Amount, tok.Maturity, string(tok.Status), tok.MintTxID)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed", zap.Error(err))
	}
	return err
}

// UpsertTokenSnapshot updates the token projection table.
func (s *HybridStore) UpsertTokenSnapshot(ctx context.Context, tok model.Token) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO vesting.token_snapshot (
			token_id, owner_address, amount, maturity, status, mint_tx_id, minted_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (token_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at;
	`, tok.ID, tok.Owner, tok.Amount, tok.Maturity, string(tok.Status), tok.MintTxID, tok.MintedAt)
	if err != nil {
		s.logger.Error("store.pg.snapshot_update_failed", zap.Error(err))
	}
	return err
}

// UpdatePoolSnapshot writes the singleton pool projection row.
func (s *HybridStore) UpdatePoolSnapshot(ctx context.Context, status model.PoolStatus) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO vesting.pool_snapshot (id, total_funded, available_balance, active_tokens, as_of)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			total_funded = EXCLUDED.total_funded,
			available_balance = EXCLUDED.available_balance,
			active_tokens = EXCLUDED.active_tokens,
			as_of = EXCLUDED.as_of;
	`, status.TotalFunded, status.AvailableBalance, status.ActiveTokens, status.AsOf)
	if err != nil {
		s.logger.Error("store.pg.pool_snapshot_failed", zap.Error(err))
	}
	return err
}

// LoadPoolSnapshot reads the pool projection; nil if none has been written.
func (s *HybridStore) LoadPoolSnapshot(ctx context.Context) (*model.PoolStatus, error) {
	if s.PG == nil {
		return nil, nil
	}
	row := s.PG.QueryRow(ctx, `
		SELECT total_funded, available_balance, active_tokens, as_of
		FROM vesting.pool_snapshot
		WHERE id = 1;
	`)

	var st model.PoolStatus
	if err := row.Scan(&st.TotalFunded, &st.AvailableBalance, &st.ActiveTokens, &st.AsOf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("LoadPoolSnapshot scan failed: %w", err)
	}
	return &st, nil
}

// LoadTokens returns all token snapshots, ordered by id.
func (s *HybridStore) LoadTokens(ctx context.Context) ([]model.Token, error) {
	if s.PG == nil {
		return nil, nil
	}
	rows, err := s.PG.Query(ctx, `
		SELECT token_id, owner_address, amount, maturity, status, mint_tx_id, minted_at
		FROM vesting.token_snapshot
		ORDER BY token_id;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var (
			tok    model.Token
			status string
			amount decimal.Decimal
		)
		if err := rows.Scan(&tok.ID, &tok.Owner, &amount, &tok.Maturity,
			&status, &tok.MintTxID, &tok.MintedAt); err != nil {
			return nil, err
		}
		tok.Amount = amount
		tok.Status = model.TokenStatus(status)
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// RecordReconciliationGap flags a payout whose settlement acknowledgement was
// lost. Rows stay until an operator resolves them out-of-band.
func (s *HybridStore) RecordReconciliationGap(ctx context.Context, tok model.Token, reason string) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO vesting.reconciliation_gap (token_id, owner_address, amount, reason, recorded_at, resolved)
		VALUES ($1, $2, $3, $4, NOW(), FALSE);
	`, tok.ID, tok.Owner, tok.Amount, reason)
	if err != nil {
		s.logger.Error("store.pg.gap_insert_failed", zap.Error(err))
	}
	return err
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
