package app

import (
	"context"
	"fmt"

	"gymkana-live-service/internal/domain"
)

// SubmitResponse validates and persists a team's submission to a
// challenge. The store assigns id and timestamp; votes_count starts at
// zero. Content is an opaque text body or media reference; upload and
// storage of media happen elsewhere.
func (s *LiveService) SubmitResponse(ctx context.Context, draft domain.ResponseDraft) (domain.Response, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Response{}, err
	}

	challenge, err := s.store.ChallengeByID(ctx, draft.ChallengeID)
	if err != nil {
		return domain.Response{}, fmt.Errorf("load challenge: %w", err)
	}
	if draft.Type != challenge.Type {
		return domain.Response{}, fmt.Errorf("%w: challenge %q expects %s", domain.ErrTypeMismatch, challenge.ID, challenge.Type)
	}

	response, err := s.store.InsertResponse(ctx, domain.Response{
		ChallengeID: draft.ChallengeID,
		TeamID:      draft.TeamID,
		UserName:    draft.UserName,
		Content:     draft.Content,
		Type:        draft.Type,
	})
	if err != nil {
		return domain.Response{}, fmt.Errorf("insert response: %w", err)
	}

	s.publish(ctx, domain.Change{Kind: domain.KindResponse, Scope: response.ChallengeID})
	return response, nil
}
