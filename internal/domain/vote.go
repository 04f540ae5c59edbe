package domain

// CommunityVote is one crowd-sourced score contribution for a target.
// Append-only per (target, chain); contributes to but never overrides the
// model score.
type CommunityVote struct {
	Voter     string
	Target    string
	Chain     Chain
	Score     float64 // 0..100
	Weight    float64 // voter weight at submission time, reputation applied later
	Comment   string
	CreatedAt int64 // Unix timestamp in milliseconds
}
