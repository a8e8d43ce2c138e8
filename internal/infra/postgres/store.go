package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gymkana-live-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SQLSTATE codes the store translates into domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is the Postgres implementation of app.Store. Vote uniqueness is
// enforced by the UNIQUE (response_id, voter_name) index, and the
// votes_count counter is updated in the same transaction as the vote
// insert, so readers never observe a drifted counter.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertResponse(ctx context.Context, response domain.Response) (domain.Response, error) {
	response.ID = uuid.NewString()
	response.VotesCount = 0
	err := s.pool.QueryRow(ctx,
		`INSERT INTO responses (id, challenge_id, team_id, user_name, content, type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING submitted_at`,
		response.ID, response.ChallengeID, response.TeamID, response.UserName, response.Content, string(response.Type),
	).Scan(&response.SubmittedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			if pgErr.ConstraintName == "responses_team_id_fkey" {
				return domain.Response{}, domain.ErrTeamNotFound
			}
			return domain.Response{}, domain.ErrChallengeNotFound
		}
		return domain.Response{}, fmt.Errorf("insert response: %w", err)
	}
	return response, nil
}

func (s *Store) InsertVote(ctx context.Context, vote domain.Vote) (domain.Vote, error) {
	vote.ID = uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Vote{}, fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var voterTeam interface{}
	if vote.VoterTeamID != "" {
		voterTeam = vote.VoterTeamID
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO votes (id, response_id, voter_name, voter_team_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		vote.ID, vote.ResponseID, vote.VoterName, voterTeam,
	).Scan(&vote.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case codeUniqueViolation:
				return domain.Vote{}, domain.ErrDuplicateVote
			case codeForeignKeyViolation:
				return domain.Vote{}, domain.ErrResponseNotFound
			}
		}
		return domain.Vote{}, fmt.Errorf("insert vote: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE responses SET votes_count = votes_count + 1 WHERE id = $1`,
		vote.ResponseID,
	); err != nil {
		return domain.Vote{}, fmt.Errorf("bump votes_count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Vote{}, fmt.Errorf("commit vote tx: %w", err)
	}
	return vote, nil
}

func (s *Store) TeamsByEvent(ctx context.Context, eventID string) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, name, color, created_at
		 FROM teams WHERE event_id = $1
		 ORDER BY name, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.EventID, &team.Name, &team.Color, &team.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (s *Store) TeamsByIDs(ctx context.Context, ids []string) (map[string]domain.Team, error) {
	if len(ids) == 0 {
		return map[string]domain.Team{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, name, color, created_at
		 FROM teams WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query teams by ids: %w", err)
	}
	defer rows.Close()

	teams := make(map[string]domain.Team, len(ids))
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.EventID, &team.Name, &team.Color, &team.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams[team.ID] = team
	}
	return teams, rows.Err()
}

func (s *Store) ResponsesByEvent(ctx context.Context, eventID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.challenge_id, r.team_id, r.user_name, r.content, r.type, r.votes_count, r.submitted_at
		 FROM responses r
		 JOIN teams t ON t.id = r.team_id
		 WHERE t.event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query responses by event: %w", err)
	}
	defer rows.Close()
	return scanResponses(rows)
}

func (s *Store) ResponsesByChallenge(ctx context.Context, challengeID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, challenge_id, team_id, user_name, content, type, votes_count, submitted_at
		 FROM responses WHERE challenge_id = $1
		 ORDER BY submitted_at DESC, id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("query responses by challenge: %w", err)
	}
	defer rows.Close()
	return scanResponses(rows)
}

func (s *Store) ResponseByID(ctx context.Context, id string) (domain.Response, error) {
	var response domain.Response
	var mediaType string
	err := s.pool.QueryRow(ctx,
		`SELECT id, challenge_id, team_id, user_name, content, type, votes_count, submitted_at
		 FROM responses WHERE id = $1`, id,
	).Scan(&response.ID, &response.ChallengeID, &response.TeamID, &response.UserName,
		&response.Content, &mediaType, &response.VotesCount, &response.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("query response: %w", err)
	}
	response.Type = domain.MediaType(mediaType)
	return response, nil
}

func (s *Store) ChallengeByID(ctx context.Context, id string) (domain.Challenge, error) {
	var challenge domain.Challenge
	var mediaType string
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, title, description, type, points, "order", location_lat, location_lng, created_at
		 FROM challenges WHERE id = $1`, id,
	).Scan(&challenge.ID, &challenge.EventID, &challenge.Title, &challenge.Description,
		&mediaType, &challenge.Points, &challenge.Order, &challenge.LocationLat, &challenge.LocationLng, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("query challenge: %w", err)
	}
	challenge.Type = domain.MediaType(mediaType)
	challenge.CreatedAt = createdAt
	return challenge, nil
}

func scanResponses(rows pgx.Rows) ([]domain.Response, error) {
	responses := make([]domain.Response, 0)
	for rows.Next() {
		var response domain.Response
		var mediaType string
		if err := rows.Scan(&response.ID, &response.ChallengeID, &response.TeamID, &response.UserName,
			&response.Content, &mediaType, &response.VotesCount, &response.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		response.Type = domain.MediaType(mediaType)
		responses = append(responses, response)
	}
	return responses, rows.Err()
}
