package domain

import "errors"

var (
	// ErrInvalidVoterName is returned before any store call when the voter
	// name is empty after trimming.
	ErrInvalidVoterName = errors.New("voter name must not be empty")
	// ErrAlreadyVoted indicates this voter already voted for the response.
	ErrAlreadyVoted = errors.New("already voted for this response")
	// ErrVoteFailed wraps transient or unknown store failures on a vote
	// insert; safe for the user to retry.
	ErrVoteFailed = errors.New("vote submission failed")
	// ErrDuplicateVote is the store-level signal for a unique violation
	// on (response_id, voter_name).
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrInvalidSubmission indicates a response draft failed validation.
	ErrInvalidSubmission = errors.New("invalid response submission")
	// ErrTypeMismatch indicates a response's media type does not match its
	// parent challenge.
	ErrTypeMismatch = errors.New("response type does not match challenge type")
	// ErrResponseNotFound indicates the referenced response does not exist.
	ErrResponseNotFound = errors.New("response not found")
	// ErrChallengeNotFound indicates the referenced challenge does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrTeamNotFound indicates the referenced team does not exist.
	ErrTeamNotFound = errors.New("team not found")
)
