package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/apperr"
	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerRepo {
	return &ledgerRepo{db: db, timeout: timeout}
}

// Insert appends a new ledger row. event_id reuse is rejected as a
// Conflict — the ledger never overwrites, so a duplicate key is always
// a caller error, not something to upsert past.
func (r *ledgerRepo) Insert(ctx context.Context, e domain.TransferEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := e.Validate(); err != nil {
		return apperr.Validation("invalid_transfer_event", err.Error())
	}

	query := `
		INSERT INTO transfer_events
		(event_id, player_id, from_club_id, to_club_id, transfer_type, transfer_date,
		 fee_amount, fee_currency, fee_amount_eur, fee_type, contract_start, contract_end,
		 loan_end_date, option_to_buy, option_amount, obligation_to_buy, obligation_amount,
		 sell_on_percent, buy_back_clause, buy_back_amount, source, source_confidence,
		 is_superseded, superseded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`

	_, err := r.db.ExecContext(ctx, query,
		e.EventID, e.PlayerID, e.FromClubID, e.ToClubID, e.TransferType, e.TransferDate,
		e.FeeAmount, e.FeeCurrency, e.FeeAmountEUR, e.FeeType, e.ContractStart, e.ContractEnd,
		e.LoanEndDate, e.OptionToBuy, e.OptionAmount, e.ObligationToBuy, e.ObligationAmount,
		e.SellOnPercent, e.BuyBackClause, e.BuyBackAmount, e.Source, e.SourceConfidence,
		e.IsSuperseded, e.SupersededBy)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("event_id_exists", fmt.Sprintf("transfer event %s already exists", e.EventID))
		}
		return fmt.Errorf("failed to insert transfer event: %w", err)
	}
	return nil
}

// Supersede marks oldEventID as superseded by newEventID. The new row
// must already exist (inserted via Insert); this only flips the
// forward pointer on the old row.
func (r *ledgerRepo) Supersede(ctx context.Context, oldEventID, newEventID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE transfer_events SET is_superseded = true, superseded_by = $1 WHERE event_id = $2`,
		newEventID, oldEventID)
	if err != nil {
		return fmt.Errorf("failed to supersede transfer event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("event_not_found", fmt.Sprintf("transfer event %s not found", oldEventID))
	}
	return nil
}

func (r *ledgerRepo) GetByEventID(ctx context.Context, eventID string) (*domain.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var e domain.TransferEvent
	err := r.db.GetContext(ctx, &e, selectTransferEvents+` WHERE event_id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("event_not_found", fmt.Sprintf("transfer event %s not found", eventID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer event: %w", err)
	}
	return &e, nil
}

func (r *ledgerRepo) ListByPlayer(ctx context.Context, playerID string, includeSuperseded bool) ([]domain.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectTransferEvents + ` WHERE player_id = $1`
	if !includeSuperseded {
		query += ` AND is_superseded = false`
	}
	query += ` ORDER BY transfer_date DESC`

	var events []domain.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, playerID); err != nil {
		return nil, fmt.Errorf("failed to list transfer events by player: %w", err)
	}
	return events, nil
}

func (r *ledgerRepo) ListByClub(ctx context.Context, clubID string, tr persistence.TimeRange) ([]domain.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectTransferEvents + `
		WHERE (from_club_id = $1 OR to_club_id = $1) AND transfer_date >= $2 AND transfer_date < $3
		ORDER BY transfer_date DESC`

	var events []domain.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, clubID, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list transfer events by club: %w", err)
	}
	return events, nil
}

func (r *ledgerRepo) ListInWindow(ctx context.Context, tr persistence.TimeRange) ([]domain.TransferEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectTransferEvents + ` WHERE transfer_date >= $1 AND transfer_date < $2 ORDER BY transfer_date DESC`

	var events []domain.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list transfer events in window: %w", err)
	}
	return events, nil
}

// Terminal follows superseded_by until it reaches a row with
// is_superseded = false, bounding the walk so a corrupted cycle fails
// loudly instead of looping forever — this is what makes (T6)
// checkable at the store layer.
func (r *ledgerRepo) Terminal(ctx context.Context, eventID string) (*domain.TransferEvent, error) {
	const maxHops = 10000
	current := eventID
	visited := make(map[string]bool, 16)

	for i := 0; i < maxHops; i++ {
		if visited[current] {
			return nil, apperr.Internal("supersede_cycle", fmt.Sprintf("cycle detected in superseded_by chain starting at %s", eventID), nil)
		}
		visited[current] = true

		e, err := r.GetByEventID(ctx, current)
		if err != nil {
			return nil, err
		}
		if !e.IsSuperseded || e.SupersededBy == nil {
			return e, nil
		}
		current = *e.SupersededBy
	}
	return nil, apperr.Internal("supersede_chain_too_long", fmt.Sprintf("superseded_by chain from %s exceeded %d hops", eventID, maxHops), nil)
}

const selectTransferEvents = `
	SELECT event_id, player_id, from_club_id, to_club_id, transfer_type, transfer_date,
	       fee_amount, fee_currency, fee_amount_eur, fee_type, contract_start, contract_end,
	       loan_end_date, option_to_buy, option_amount, obligation_to_buy, obligation_amount,
	       sell_on_percent, buy_back_clause, buy_back_amount, source, source_confidence,
	       created_at, is_superseded, superseded_by
	FROM transfer_events`
