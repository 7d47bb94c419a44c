package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryasaputra/surebot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. Legs
// are stored as JSONB; they are written once and only read back whole.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert stores a newly detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	legA, err := json.Marshal(opp.LegA)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg a: %w", err)
	}
	legB, err := json.Marshal(opp.LegB)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg b: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities (id, match_id, match_name, league, market_type, match_status, match_minute,
			leg_a, leg_b, tier_name, tier_label, tier_amount, tier_priority,
			total_stake, profit_pct, profit, status, detected_at, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		opp.ID, opp.MatchID, opp.MatchName, opp.League, string(opp.MarketType), string(opp.MatchStatus), opp.MatchMinute,
		legA, legB, opp.Tier.Name, opp.Tier.Label, opp.Tier.BetAmount, opp.Tier.Priority,
		opp.TotalStake, opp.ProfitPct, opp.Profit, string(opp.Status), opp.DetectedAt, opp.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// UpdateStatus moves an opportunity to a new lifecycle state.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update opportunity %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, match_id, match_name, league, market_type, match_status, match_minute,
			leg_a, leg_b, tier_name, tier_label, tier_amount, tier_priority,
			total_stake, profit_pct, profit, status, detected_at, evaluated_at
		FROM opportunities WHERE id = $1`, id)

	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListByStatus returns opportunities in a lifecycle state, newest first.
func (s *OpportunityStore) ListByStatus(ctx context.Context, status domain.OpportunityStatus, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query := `
		SELECT id, match_id, match_name, league, market_type, match_status, match_minute,
			leg_a, leg_b, tier_name, tier_label, tier_amount, tier_priority,
			total_stake, profit_pct, profit, status, detected_at, evaluated_at
		FROM opportunities WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND detected_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY detected_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var list []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		list = append(list, opp)
	}
	return list, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var opp domain.Opportunity
	var marketType, matchStatus, status string
	var legA, legB []byte

	err := row.Scan(&opp.ID, &opp.MatchID, &opp.MatchName, &opp.League, &marketType, &matchStatus, &opp.MatchMinute,
		&legA, &legB, &opp.Tier.Name, &opp.Tier.Label, &opp.Tier.BetAmount, &opp.Tier.Priority,
		&opp.TotalStake, &opp.ProfitPct, &opp.Profit, &status, &opp.DetectedAt, &opp.EvaluatedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := json.Unmarshal(legA, &opp.LegA); err != nil {
		return domain.Opportunity{}, fmt.Errorf("decode leg a: %w", err)
	}
	if err := json.Unmarshal(legB, &opp.LegB); err != nil {
		return domain.Opportunity{}, fmt.Errorf("decode leg b: %w", err)
	}
	opp.MarketType = domain.MarketType(marketType)
	opp.MatchStatus = domain.MatchStatus(matchStatus)
	opp.Status = domain.OpportunityStatus(status)
	return opp, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
