package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaType classifies challenge and response content.
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// IsValid checks if the given media type is one of the known values.
func (m MediaType) IsValid() bool {
	switch m {
	case MediaText, MediaImage, MediaVideo:
		return true
	default:
		return false
	}
}

// VotePointBonus is the fixed per-vote addition to a response's score.
// It is a scoring-policy parameter, not configurable per event.
const VotePointBonus = 2

// CompletionPolicy controls how repeated responses from one team to the
// same challenge are credited.
type CompletionPolicy string

const (
	// CountEveryResponse credits every response row, so a team submitting
	// twice to the same challenge earns completion credit and points twice.
	CountEveryResponse CompletionPolicy = "every-response"
	// CountDistinctChallenges credits only the earliest response a team
	// submitted per challenge.
	CountDistinctChallenges CompletionPolicy = "distinct-challenges"
)

// DefaultCompletionPolicy preserves the one-response-row-one-credit behavior.
const DefaultCompletionPolicy = CountEveryResponse

// Display fallbacks used when a response's team cannot be resolved.
const (
	FallbackTeamName  = "No team"
	FallbackTeamColor = "#3B82F6"
)

// Team is a scoring unit within one event. Immutable for this service;
// administration happens in external tooling.
type Team struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// Challenge is a task teams respond to, worth a base point value.
type Challenge struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        MediaType `json:"type"`
	Points      int       `json:"points"`
	Order       int       `json:"order"`
	LocationLat *float64  `json:"locationLat,omitempty"`
	LocationLng *float64  `json:"locationLng,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Response is a team's submission to a challenge. VotesCount is a
// denormalized counter the store keeps in step with the votes table;
// every other field is written once at submission time.
type Response struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challengeId"`
	TeamID      string    `json:"teamId"`
	UserName    string    `json:"userName"`
	Content     string    `json:"content"`
	Type        MediaType `json:"type"`
	VotesCount  int       `json:"votesCount"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ResponseDraft carries a submission before the store assigns id and timestamp.
type ResponseDraft struct {
	ChallengeID string
	TeamID      string
	UserName    string
	Content     string
	Type        MediaType
}

// Normalize trims user-supplied fields and validates required ones.
func (d ResponseDraft) Normalize() (ResponseDraft, error) {
	d.UserName = strings.TrimSpace(d.UserName)
	d.Content = strings.TrimSpace(d.Content)
	if d.ChallengeID == "" {
		return d, fmt.Errorf("%w: missing challenge id", ErrInvalidSubmission)
	}
	if d.TeamID == "" {
		return d, fmt.Errorf("%w: missing team id", ErrInvalidSubmission)
	}
	if d.UserName == "" {
		return d, fmt.Errorf("%w: missing user name", ErrInvalidSubmission)
	}
	if d.Content == "" {
		return d, fmt.Errorf("%w: missing content", ErrInvalidSubmission)
	}
	if !d.Type.IsValid() {
		return d, fmt.Errorf("%w: unknown type %q", ErrInvalidSubmission, d.Type)
	}
	return d, nil
}

// Vote is a single voter's endorsement of one response. The store rejects
// a second vote with the same (response, voter name) pair.
type Vote struct {
	ID          string    `json:"id"`
	ResponseID  string    `json:"responseId"`
	VoterName   string    `json:"voterName"`
	VoterTeamID string    `json:"voterTeamId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TeamScore is the derived aggregate for one team. It is recomputed from
// responses and votes on every read and never persisted.
type TeamScore struct {
	TeamID              string `json:"teamId"`
	TeamName            string `json:"teamName"`
	TeamColor           string `json:"teamColor"`
	TotalPoints         int    `json:"totalPoints"`
	CompletedChallenges int    `json:"completedChallenges"`
	TotalVotes          int    `json:"totalVotes"`
}

// ResponseView is a response enriched with its team's display attributes.
type ResponseView struct {
	Response
	TeamName  string `json:"teamName"`
	TeamColor string `json:"teamColor"`
}

// RecordKind identifies which table a change notification refers to.
type RecordKind string

const (
	KindTeam      RecordKind = "teams"
	KindChallenge RecordKind = "challenges"
	KindResponse  RecordKind = "responses"
	KindVote      RecordKind = "votes"
)

// Change is a payload-less "something changed" signal. Scope optionally
// narrows response changes to one challenge; consumers must re-read true
// state and never treat a Change as carrying data.
type Change struct {
	Kind  RecordKind
	Scope string
}

// RankingSnapshot is one emission of a ranking watch. When a re-fetch
// fails the previous scores are re-sent with Degraded set instead of
// collapsing to an empty board.
type RankingSnapshot struct {
	EventID   string      `json:"eventId"`
	Scores    []TeamScore `json:"scores"`
	Degraded  bool        `json:"degraded,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FeedSnapshot is one emission of a feed watch.
type FeedSnapshot struct {
	ChallengeID string         `json:"challengeId"`
	Responses   []ResponseView `json:"responses"`
	Degraded    bool           `json:"degraded,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
