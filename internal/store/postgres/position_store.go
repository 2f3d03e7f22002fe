package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// PositionStore mirrors ledger positions into the positions table. The
// ledger stays the source of truth; rows are upserted on every transition.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, strategy, market_id, question, outcome, token_id, side,
	entry_price, size, notional_usd, edge, confidence, state,
	opened_at, confirmed_at, closed_at, exit_price, realized_pnl,
	fees, last_mark, uncertain, order_id, leg_group_id, reason`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, state string
	err := row.Scan(
		&p.ID, &p.Strategy, &p.MarketID, &p.Question, &p.Outcome, &p.TokenID, &side,
		&p.EntryPrice, &p.Size, &p.NotionalUSD, &p.Edge, &p.Confidence, &state,
		&p.OpenedAt, &p.ConfirmedAt, &p.ClosedAt, &p.ExitPrice, &p.RealizedPnL,
		&p.Fees, &p.LastMark, &p.Uncertain, &p.OrderID, &p.LegGroupID, &p.Reason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.OrderSide(side)
	p.State = domain.PositionState(state)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a position row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, strategy, market_id, question, outcome, token_id, side,
			entry_price, size, notional_usd, edge, confidence, state,
			opened_at, confirmed_at, closed_at, exit_price, realized_pnl,
			fees, last_mark, uncertain, order_id, leg_group_id, reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			entry_price  = EXCLUDED.entry_price,
			size         = EXCLUDED.size,
			notional_usd = EXCLUDED.notional_usd,
			state        = EXCLUDED.state,
			confirmed_at = EXCLUDED.confirmed_at,
			closed_at    = EXCLUDED.closed_at,
			exit_price   = EXCLUDED.exit_price,
			realized_pnl = EXCLUDED.realized_pnl,
			fees         = EXCLUDED.fees,
			last_mark    = EXCLUDED.last_mark,
			uncertain    = EXCLUDED.uncertain,
			order_id     = EXCLUDED.order_id,
			reason       = EXCLUDED.reason,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Strategy, p.MarketID, p.Question, p.Outcome, p.TokenID, string(p.Side),
		p.EntryPrice, p.Size, p.NotionalUSD, p.Edge, p.Confidence, string(p.State),
		p.OpenedAt, p.ConfirmedAt, p.ClosedAt, p.ExitPrice, p.RealizedPnL,
		p.Fees, p.LastMark, p.Uncertain, p.OrderID, p.LegGroupID, p.Reason,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a rolled-back reservation.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListLive returns PENDING and OPEN positions, oldest first.
func (s *PositionStore) ListLive(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE state IN ('PENDING', 'OPEN')
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list live positions: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan live positions: %w", err)
	}
	return positions, nil
}

// ListHistory pages through every position, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := listQuery(`SELECT `+positionSelectCols+` FROM positions WHERE 1=1`, nil, "opened_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}
