package app

import (
	"context"
	"fmt"
	"sort"

	"gymkana-live-service/internal/domain"
)

// ComputeRankings derives each team's score from the current snapshot of
// teams, responses and challenge point values. It carries no state
// between calls: repeated recomputation over identical store contents
// always produces the same ordered result, regardless of the order the
// underlying writes happened in.
//
// A failed read returns a non-nil error rather than an empty board, so
// callers can tell "no teams yet" from "fetch failed".
func (s *LiveService) ComputeRankings(ctx context.Context, eventID string) ([]domain.TeamScore, error) {
	teams, err := s.store.TeamsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	if len(teams) == 0 {
		return []domain.TeamScore{}, nil
	}

	responses, err := s.store.ResponsesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	challenges, err := s.catalog.ChallengesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load challenges: %w", err)
	}

	if s.policy == domain.CountDistinctChallenges {
		responses = earliestPerChallenge(responses)
	}

	basePoints := make(map[string]int, len(challenges))
	for _, challenge := range challenges {
		basePoints[challenge.ID] = challenge.Points
	}

	byTeam := make(map[string][]domain.Response, len(teams))
	for _, response := range responses {
		byTeam[response.TeamID] = append(byTeam[response.TeamID], response)
	}

	scores := make([]domain.TeamScore, 0, len(teams))
	for _, team := range teams {
		score := domain.TeamScore{
			TeamID:    team.ID,
			TeamName:  team.Name,
			TeamColor: team.Color,
		}
		for _, response := range byTeam[team.ID] {
			// A response whose challenge is unknown still counts as a
			// completion but contributes no base points.
			score.TotalPoints += basePoints[response.ChallengeID] + domain.VotePointBonus*response.VotesCount
			score.TotalVotes += response.VotesCount
			score.CompletedChallenges++
		}
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalPoints != scores[j].TotalPoints {
			return scores[i].TotalPoints > scores[j].TotalPoints
		}
		// Tie-break by name then id to keep output stable across
		// recomputations with identical input.
		if scores[i].TeamName != scores[j].TeamName {
			return scores[i].TeamName < scores[j].TeamName
		}
		return scores[i].TeamID < scores[j].TeamID
	})

	return scores, nil
}

// earliestPerChallenge keeps, per (team, challenge), only the response
// with the earliest submission time.
func earliestPerChallenge(responses []domain.Response) []domain.Response {
	type key struct{ teamID, challengeID string }
	earliest := make(map[key]domain.Response, len(responses))
	for _, response := range responses {
		k := key{response.TeamID, response.ChallengeID}
		kept, ok := earliest[k]
		if !ok || response.SubmittedAt.Before(kept.SubmittedAt) {
			earliest[k] = response
		}
	}
	kept := make([]domain.Response, 0, len(earliest))
	for _, response := range earliest {
		kept = append(kept, response)
	}
	return kept
}
