package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gymkana-live-service/internal/domain"
)

// CastVote records a single vote for a response. It always attempts the
// insert and interprets the outcome; there is no pre-read check, so two
// concurrent voters with the same name race on the store's uniqueness
// constraint and exactly one wins.
//
// Calling CastVote twice with the same (responseID, voterName) yields a
// vote once and domain.ErrAlreadyVoted on every subsequent call.
func (s *LiveService) CastVote(ctx context.Context, responseID, voterName, voterTeamID string) (domain.Vote, error) {
	name := strings.TrimSpace(voterName)
	if name == "" {
		return domain.Vote{}, domain.ErrInvalidVoterName
	}

	vote, err := s.store.InsertVote(ctx, domain.Vote{
		ResponseID:  responseID,
		VoterName:   name,
		VoterTeamID: voterTeamID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) {
			return domain.Vote{}, domain.ErrAlreadyVoted
		}
		return domain.Vote{}, fmt.Errorf("%w: %v", domain.ErrVoteFailed, err)
	}

	s.publish(ctx, domain.Change{Kind: domain.KindVote})
	return vote, nil
}
