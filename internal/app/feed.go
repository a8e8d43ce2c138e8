package app

import (
	"context"
	"fmt"
	"sort"

	"gymkana-live-service/internal/domain"
)

// ProjectFeed produces the ordered response list for one challenge with
// the owning team's display attributes denormalized in. It is read-only
// and reflects store state at call time; staleness is handled by the
// watch protocol, not by caching here.
//
// A response whose team is missing gets the documented fallback label
// and color instead of failing the whole feed. A failed read returns a
// non-nil error rather than an empty feed.
func (s *LiveService) ProjectFeed(ctx context.Context, challengeID string) ([]domain.ResponseView, error) {
	responses, err := s.store.ResponsesByChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	if len(responses) == 0 {
		return []domain.ResponseView{}, nil
	}

	seen := make(map[string]struct{}, len(responses))
	teamIDs := make([]string, 0, len(responses))
	for _, response := range responses {
		if _, ok := seen[response.TeamID]; ok {
			continue
		}
		seen[response.TeamID] = struct{}{}
		teamIDs = append(teamIDs, response.TeamID)
	}

	teams, err := s.store.TeamsByIDs(ctx, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}

	views := make([]domain.ResponseView, 0, len(responses))
	for _, response := range responses {
		view := domain.ResponseView{
			Response:  response,
			TeamName:  domain.FallbackTeamName,
			TeamColor: domain.FallbackTeamColor,
		}
		if team, ok := teams[response.TeamID]; ok {
			view.TeamName = team.Name
			view.TeamColor = team.Color
		}
		views = append(views, view)
	}

	// Newest first; id as secondary key so identical timestamps stay stable.
	sort.Slice(views, func(i, j int) bool {
		if !views[i].SubmittedAt.Equal(views[j].SubmittedAt) {
			return views[i].SubmittedAt.After(views[j].SubmittedAt)
		}
		return views[i].ID < views[j].ID
	})

	return views, nil
}
