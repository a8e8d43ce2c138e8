package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gymkana-live-service/internal/domain"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of app.Store, used for tests and
// demo mode. The (response_id, voter_name) uniqueness index plays the
// role of the database constraint, and votes_count is bumped under the
// same lock as the vote insert so the counter never drifts.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	teams      map[string]domain.Team
	challenges map[string]domain.Challenge
	responses  map[string]*domain.Response
	votes      map[string]domain.Vote
	voteIndex  map[voteKey]struct{}
}

type voteKey struct {
	responseID string
	voterName  string
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:        now,
		teams:      make(map[string]domain.Team),
		challenges: make(map[string]domain.Challenge),
		responses:  make(map[string]*domain.Response),
		votes:      make(map[string]domain.Vote),
		voteIndex:  make(map[voteKey]struct{}),
	}
}

// AddTeam seeds a team. Team administration is out of scope for the
// service itself, so seeding is exposed on the store directly.
func (s *Store) AddTeam(team domain.Team) domain.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = s.now()
	}
	s.teams[team.ID] = team
	return team
}

// AddChallenge seeds a challenge.
func (s *Store) AddChallenge(challenge domain.Challenge) domain.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = s.now()
	}
	s.challenges[challenge.ID] = challenge
	return challenge
}

func (s *Store) InsertResponse(_ context.Context, response domain.Response) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[response.ChallengeID]; !ok {
		return domain.Response{}, domain.ErrChallengeNotFound
	}
	if _, ok := s.teams[response.TeamID]; !ok {
		return domain.Response{}, domain.ErrTeamNotFound
	}
	response.ID = uuid.NewString()
	response.VotesCount = 0
	response.SubmittedAt = s.now()
	stored := response
	s.responses[stored.ID] = &stored
	return response, nil
}

func (s *Store) InsertVote(_ context.Context, vote domain.Vote) (domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	response, ok := s.responses[vote.ResponseID]
	if !ok {
		return domain.Vote{}, domain.ErrResponseNotFound
	}
	key := voteKey{responseID: vote.ResponseID, voterName: vote.VoterName}
	if _, dup := s.voteIndex[key]; dup {
		return domain.Vote{}, domain.ErrDuplicateVote
	}
	vote.ID = uuid.NewString()
	vote.CreatedAt = s.now()
	s.votes[vote.ID] = vote
	s.voteIndex[key] = struct{}{}
	response.VotesCount++
	return vote, nil
}

func (s *Store) TeamsByEvent(_ context.Context, eventID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]domain.Team, 0)
	for _, team := range s.teams {
		if team.EventID == eventID {
			teams = append(teams, team)
		}
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Name != teams[j].Name {
			return teams[i].Name < teams[j].Name
		}
		return teams[i].ID < teams[j].ID
	})
	return teams, nil
}

func (s *Store) TeamsByIDs(_ context.Context, ids []string) (map[string]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make(map[string]domain.Team, len(ids))
	for _, id := range ids {
		if team, ok := s.teams[id]; ok {
			teams[id] = team
		}
	}
	return teams, nil
}

func (s *Store) ResponsesByEvent(_ context.Context, eventID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make(map[string]struct{})
	for id, team := range s.teams {
		if team.EventID == eventID {
			members[id] = struct{}{}
		}
	}
	responses := make([]domain.Response, 0)
	for _, response := range s.responses {
		if _, ok := members[response.TeamID]; ok {
			responses = append(responses, *response)
		}
	}
	return responses, nil
}

func (s *Store) ResponsesByChallenge(_ context.Context, challengeID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	responses := make([]domain.Response, 0)
	for _, response := range s.responses {
		if response.ChallengeID == challengeID {
			responses = append(responses, *response)
		}
	}
	return responses, nil
}

func (s *Store) ResponseByID(_ context.Context, id string) (domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	response, ok := s.responses[id]
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	return *response, nil
}

func (s *Store) ChallengeByID(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return challenge, nil
}

// LoadChallenges makes the store usable as a CatalogLoader in demo mode.
func (s *Store) LoadChallenges(_ context.Context, eventID string) ([]domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenges := make([]domain.Challenge, 0)
	for _, challenge := range s.challenges {
		if challenge.EventID == eventID {
			challenges = append(challenges, challenge)
		}
	}
	sort.Slice(challenges, func(i, j int) bool {
		if challenges[i].Order != challenges[j].Order {
			return challenges[i].Order < challenges[j].Order
		}
		return challenges[i].ID < challenges[j].ID
	})
	return challenges, nil
}
