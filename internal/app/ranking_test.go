package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/domain"
	"gymkana-live-service/internal/infra/memory"
)

// Team A: responses worth {10, 5} base points with {3, 0} votes.
// Team B: one response worth 20 base points with 1 vote.
// A = 10+3*2 + 5+0*2 = 21, B = 20+1*2 = 22, so B leads.
func TestComputeRankingsScoringFormula(t *testing.T) {
	ctx := context.Background()
	service, fx := newTestService(t)

	big := fx.store.AddChallenge(domain.Challenge{
		EventID: fx.eventID, Title: "Grand finale", Type: domain.MediaText, Points: 20, Order: 3,
	})

	mustRespond(t, fx.store, fx.slogan.ID, fx.teamA.ID, "Marta", "we climb walls")
	respB := mustRespond(t, fx.store, big.ID, fx.teamB.ID, "Nora", "the finale answer")

	for _, voter := range []string{"v1", "v2", "v3"} {
		if _, err := service.CastVote(ctx, fx.responseA1.ID, voter, ""); err != nil {
			t.Fatalf("vote %s: %v", voter, err)
		}
	}
	if _, err := service.CastVote(ctx, respB.ID, "v1", ""); err != nil {
		t.Fatalf("vote respB: %v", err)
	}

	scores, err := service.ComputeRankings(ctx, fx.eventID)
	if err != nil {
		t.Fatalf("compute rankings: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(scores))
	}
	if scores[0].TeamID != fx.teamB.ID || scores[0].TotalPoints != 22 {
		t.Fatalf("expected Bravo leading with 22, got %+v", scores[0])
	}
	if scores[1].TeamID != fx.teamA.ID || scores[1].TotalPoints != 21 {
		t.Fatalf("expected Alpha with 21, got %+v", scores[1])
	}
	if scores[1].TotalVotes != 3 || scores[1].CompletedChallenges != 2 {
		t.Fatalf("expected Alpha with 3 votes over 2 completions, got %+v", scores[1])
	}
}

func TestComputeRankingsInsensitiveToWriteOrder(t *testing.T) {
	ctx := context.Background()

	run := func(votesFirst bool) []domain.TeamScore {
		service, fx := newTestService(t)
		votes := []string{"v1", "v2"}
		respond := func() domain.Response {
			return mustRespond(t, fx.store, fx.slogan.ID, fx.teamB.ID, "Nora", "catchy words")
		}
		var respB domain.Response
		if votesFirst {
			for _, voter := range votes {
				if _, err := service.CastVote(ctx, fx.responseA1.ID, voter, ""); err != nil {
					t.Fatalf("vote: %v", err)
				}
			}
			respB = respond()
		} else {
			respB = respond()
			for _, voter := range votes {
				if _, err := service.CastVote(ctx, fx.responseA1.ID, voter, ""); err != nil {
					t.Fatalf("vote: %v", err)
				}
			}
		}
		if _, err := service.CastVote(ctx, respB.ID, "v9", ""); err != nil {
			t.Fatalf("vote respB: %v", err)
		}
		scores, err := service.ComputeRankings(ctx, fx.eventID)
		if err != nil {
			t.Fatalf("compute rankings: %v", err)
		}
		return scores
	}

	first := run(true)
	second := run(false)
	if len(first) != len(second) {
		t.Fatalf("ranking lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TeamName != second[i].TeamName || first[i].TotalPoints != second[i].TotalPoints {
			t.Fatalf("write order changed ranking at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestComputeRankingsDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	service, fx := newTestService(t)

	// Bravo matches Alpha's single 10-point response: a pure tie.
	mustRespond(t, fx.store, fx.photoHunt.ID, fx.teamB.ID, "Nora", "https://cdn.example/photo-2.jpg")

	for i := 0; i < 5; i++ {
		scores, err := service.ComputeRankings(ctx, fx.eventID)
		if err != nil {
			t.Fatalf("compute rankings: %v", err)
		}
		if scores[0].TeamName != "Alpha" || scores[1].TeamName != "Bravo" {
			t.Fatalf("tie must break by name, got %s before %s", scores[0].TeamName, scores[1].TeamName)
		}
	}
}

func TestComputeRankingsEmptyEvent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	scores, err := service.ComputeRankings(ctx, "event-without-teams")
	if err != nil {
		t.Fatalf("empty event should not error: %v", err)
	}
	if len(scores) != 0 {
		t.Fatalf("expected empty ranking, got %+v", scores)
	}
}

func TestComputeRankingsSurfacesReadFailure(t *testing.T) {
	ctx := context.Background()
	_, fx := newTestService(t)

	failing := &failingStore{Store: fx.store}
	failing.failResponses.Store(true)
	service := app.NewLiveService(failing, fx.catalog, fx.notifier)

	_, err := service.ComputeRankings(ctx, fx.eventID)
	if err == nil {
		t.Fatalf("expected error when response fetch fails, got silent result")
	}
}

func TestComputeRankingsDistinctChallengePolicy(t *testing.T) {
	ctx := context.Background()
	_, fx := newTestService(t)

	// Alpha submits to the photo hunt a second time, later.
	fx.clock.Advance(time.Minute)
	mustRespond(t, fx.store, fx.photoHunt.ID, fx.teamA.ID, "Marta", "https://cdn.example/photo-retake.jpg")

	every := app.NewLiveServiceWithPolicy(fx.store, fx.catalog, fx.notifier, domain.CountEveryResponse)
	scores, err := every.ComputeRankings(ctx, fx.eventID)
	if err != nil {
		t.Fatalf("compute rankings: %v", err)
	}
	if alpha := findScore(t, scores, "Alpha"); alpha.CompletedChallenges != 2 || alpha.TotalPoints != 20 {
		t.Fatalf("every-response policy should double-credit, got %+v", alpha)
	}

	distinct := app.NewLiveServiceWithPolicy(fx.store, fx.catalog, fx.notifier, domain.CountDistinctChallenges)
	scores, err = distinct.ComputeRankings(ctx, fx.eventID)
	if err != nil {
		t.Fatalf("compute rankings: %v", err)
	}
	if alpha := findScore(t, scores, "Alpha"); alpha.CompletedChallenges != 1 || alpha.TotalPoints != 10 {
		t.Fatalf("distinct-challenges policy should credit once, got %+v", alpha)
	}
}

func findScore(t *testing.T, scores []domain.TeamScore, name string) domain.TeamScore {
	t.Helper()
	for _, score := range scores {
		if score.TeamName == name {
			return score
		}
	}
	t.Fatalf("team %s missing from ranking %+v", name, scores)
	return domain.TeamScore{}
}

func mustRespond(t *testing.T, store *memory.Store, challengeID, teamID, userName, content string) domain.Response {
	t.Helper()
	challenge, err := store.ChallengeByID(context.Background(), challengeID)
	if err != nil {
		t.Fatalf("challenge lookup: %v", err)
	}
	response, err := store.InsertResponse(context.Background(), domain.Response{
		ChallengeID: challengeID,
		TeamID:      teamID,
		UserName:    userName,
		Content:     content,
		Type:        challenge.Type,
	})
	if err != nil {
		t.Fatalf("insert response: %v", err)
	}
	return response
}

// failingStore simulates partial read failures. The flags are atomic so
// watch tests can flip them while a refresh loop is running.
type failingStore struct {
	app.Store
	failTeams     atomic.Bool
	failResponses atomic.Bool
}

func (s *failingStore) TeamsByEvent(ctx context.Context, eventID string) ([]domain.Team, error) {
	if s.failTeams.Load() {
		return nil, fmt.Errorf("teams fetch: %w", errStoreDown)
	}
	return s.Store.TeamsByEvent(ctx, eventID)
}

func (s *failingStore) ResponsesByEvent(ctx context.Context, eventID string) ([]domain.Response, error) {
	if s.failResponses.Load() {
		return nil, fmt.Errorf("responses fetch: %w", errStoreDown)
	}
	return s.Store.ResponsesByEvent(ctx, eventID)
}

func (s *failingStore) ResponsesByChallenge(ctx context.Context, challengeID string) ([]domain.Response, error) {
	if s.failResponses.Load() {
		return nil, fmt.Errorf("responses fetch: %w", errStoreDown)
	}
	return s.Store.ResponsesByChallenge(ctx, challengeID)
}

var errStoreDown = errors.New("store unavailable")
