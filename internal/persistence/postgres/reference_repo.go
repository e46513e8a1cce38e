package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transferintel/scout/internal/domain"
	"github.com/transferintel/scout/internal/persistence"
)

type referenceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewReferenceRepo(db *sqlx.DB, timeout time.Duration) persistence.ReferenceRepo {
	return &referenceRepo{db: db, timeout: timeout}
}

func (r *referenceRepo) UpsertCompetition(ctx context.Context, c domain.Competition) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO competitions (id, name, country, tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			country = EXCLUDED.country,
			tier = EXCLUDED.tier`

	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Country, c.Tier); err != nil {
		return fmt.Errorf("failed to upsert competition: %w", err)
	}
	return nil
}

func (r *referenceRepo) UpsertClub(ctx context.Context, c domain.Club) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO clubs (id, name, country, competition_id, tier)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			country = EXCLUDED.country,
			competition_id = EXCLUDED.competition_id,
			tier = EXCLUDED.tier`

	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Country, c.CompetitionID, c.Tier); err != nil {
		return fmt.Errorf("failed to upsert club: %w", err)
	}
	return nil
}

func (r *referenceRepo) UpsertPlayer(ctx context.Context, p domain.Player) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO players (id, name, dob, nationality, position, current_club_id, contract_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			dob = EXCLUDED.dob,
			nationality = EXCLUDED.nationality,
			position = EXCLUDED.position,
			current_club_id = EXCLUDED.current_club_id,
			contract_until = EXCLUDED.contract_until`

	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.DOB, p.Nationality, p.Position, p.CurrentClubID, p.ContractUntil); err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

func (r *referenceRepo) GetCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c domain.Competition
	err := r.db.GetContext(ctx, &c, `SELECT id, name, country, tier FROM competitions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	return &c, nil
}

func (r *referenceRepo) GetClub(ctx context.Context, id string) (*domain.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c domain.Club
	err := r.db.GetContext(ctx, &c, `SELECT id, name, country, competition_id, tier FROM clubs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get club: %w", err)
	}
	return &c, nil
}

func (r *referenceRepo) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p domain.Player
	err := r.db.GetContext(ctx, &p,
		`SELECT id, name, dob, nationality, position, current_club_id, contract_until FROM players WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

func (r *referenceRepo) ListClubsByCompetition(ctx context.Context, competitionID string) ([]domain.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []domain.Club
	err := r.db.SelectContext(ctx, &clubs,
		`SELECT id, name, country, competition_id, tier FROM clubs WHERE competition_id = $1 ORDER BY name`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clubs by competition: %w", err)
	}
	return clubs, nil
}

func (r *referenceRepo) ListCompetitions(ctx context.Context) ([]domain.Competition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var competitions []domain.Competition
	err := r.db.SelectContext(ctx, &competitions,
		`SELECT id, name, country, tier FROM competitions ORDER BY tier, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	return competitions, nil
}

func (r *referenceRepo) ListClubsByMaxTier(ctx context.Context, maxTier int) ([]domain.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []domain.Club
	err := r.db.SelectContext(ctx, &clubs,
		`SELECT id, name, country, competition_id, tier FROM clubs WHERE tier <= $1 ORDER BY tier, name`, maxTier)
	if err != nil {
		return nil, fmt.Errorf("failed to list clubs by max tier: %w", err)
	}
	return clubs, nil
}

func (r *referenceRepo) SearchPlayers(ctx context.Context, query string, limit int) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var players []domain.Player
	err := r.db.SelectContext(ctx, &players,
		`SELECT id, name, dob, nationality, position, current_club_id, contract_until
		 FROM players WHERE name ILIKE '%' || $1 || '%' ORDER BY name LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search players: %w", err)
	}
	return players, nil
}

func (r *referenceRepo) SearchClubs(ctx context.Context, query string, limit int) ([]domain.Club, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var clubs []domain.Club
	err := r.db.SelectContext(ctx, &clubs,
		`SELECT id, name, country, competition_id, tier
		 FROM clubs WHERE name ILIKE '%' || $1 || '%' ORDER BY name LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search clubs: %w", err)
	}
	return clubs, nil
}

func (r *referenceRepo) ListPlayersByCurrentClub(ctx context.Context, clubID string) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var players []domain.Player
	err := r.db.SelectContext(ctx, &players,
		`SELECT id, name, dob, nationality, position, current_club_id, contract_until
		 FROM players WHERE current_club_id = $1 ORDER BY name`, clubID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players by current club: %w", err)
	}
	return players, nil
}

func (r *referenceRepo) ListPlayersByCurrentClubAndPosition(ctx context.Context, clubID, position string) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var players []domain.Player
	err := r.db.SelectContext(ctx, &players,
		`SELECT id, name, dob, nationality, position, current_club_id, contract_until
		 FROM players WHERE current_club_id = $1 AND position = $2 ORDER BY name`, clubID, position)
	if err != nil {
		return nil, fmt.Errorf("failed to list players by current club and position: %w", err)
	}
	return players, nil
}
