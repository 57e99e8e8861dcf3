// internal/session/outcome.go
package session

// RejectReason names why an inbound event was dropped. Rejections are
// expected adversarial or racy client behavior, not errors: the wire-level
// response is simply the absence of a state change.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectEmptyName       RejectReason = "empty_team_name"
	RejectDuplicateTeam   RejectReason = "duplicate_team_name"
	RejectUnknownTeam     RejectReason = "unknown_team"
	RejectWrongPhase      RejectReason = "wrong_phase"
	RejectBadIndex        RejectReason = "bad_index"
	RejectSelfVote        RejectReason = "self_vote"
	RejectStorytellerVote RejectReason = "storyteller_vote"
	RejectDuplicateVote   RejectReason = "duplicate_vote"
	RejectNoTeams         RejectReason = "no_teams"
	RejectUnknownEvent    RejectReason = "unknown_event"
)

// Notice identifies a phase-boundary notification that collaborating
// presentation layers listen for. Names match the wire events.
type Notice string

const (
	NoticeNone         Notice = ""
	NoticeVotePhase    Notice = "votePhaseStarted"
	NoticeResultsPhase Notice = "resultsPhaseStarted"
	NoticeNextRound    Notice = "nextRoundStarted"
)

// Outcome is the tagged result of applying one event against the session.
// A rejected outcome means nothing changed and nothing should be broadcast.
type Outcome struct {
	Applied bool
	Reason  RejectReason
	Notice  Notice
}

func applied(n Notice) Outcome        { return Outcome{Applied: true, Notice: n} }
func rejected(r RejectReason) Outcome { return Outcome{Reason: r} }
