// internal/session/round.go
package session

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fablegame/fable/internal/deck"
)

// RegisterTeam creates a team record and deals it a fresh hand. Registration
// is allowed in any phase; duplicate names are rejected and the prior record
// is preserved untouched. If isHost is set, this connection takes over the
// session host reference (last write wins).
func (s *Session) RegisterTeam(name string, isHost bool, conn uuid.UUID) Outcome {
	if name == "" {
		return rejected(RejectEmptyName)
	}
	if _, exists := s.Teams[name]; exists {
		s.log.WithField("team", name).Warn("Rejected registration: duplicate team name")
		return rejected(RejectDuplicateTeam)
	}

	team := &Team{
		Hand:   s.drawCards(s.handSize),
		Conn:   conn,
		IsHost: isHost,
	}
	s.Teams[name] = team
	if isHost {
		s.HostConn = conn
	}

	s.log.WithFields(logrus.Fields{
		"team":          name,
		"isHost":        isHost,
		"deckRemaining": len(s.Deck),
	}).Info("Team registered")
	return applied(NoticeNone)
}

// SetHost flags an existing team as the facilitator and repoints the host
// connection reference. Any previously flagged team keeps its flag; the
// single-host convention is documented, not enforced.
func (s *Session) SetHost(name string) Outcome {
	team, ok := s.Teams[name]
	if !ok {
		return rejected(RejectUnknownTeam)
	}
	team.IsHost = true
	s.HostConn = team.Conn
	s.log.WithField("team", name).Info("Host reassigned")
	return applied(NoticeNone)
}

// NextRound advances the session into a new hand phase. From the lobby it
// starts the game (picking an initial storyteller, round number unchanged);
// from any later phase it clears the round containers, increments the round
// number, picks a new storyteller, and replenishes every hand.
func (s *Session) NextRound() Outcome {
	if s.Phase == PhaseLobby {
		if len(s.Teams) == 0 {
			return rejected(RejectNoTeams)
		}
		if s.StorytellerTeam == "" {
			s.StorytellerTeam = s.pickStoryteller()
		}
		s.Phase = PhaseHand
		s.log.WithField("storyteller", s.StorytellerTeam).Info("Game started")
		return applied(NoticeNextRound)
	}

	for _, pc := range s.PlayedCards {
		s.Discard = append(s.Discard, pc.Card)
	}
	s.PlayedCards = nil
	s.Votes = make(map[string]int)
	s.StorytellerCard = ""
	s.Phase = PhaseHand
	s.RoundNumber++
	s.StorytellerTeam = s.pickStoryteller()

	for _, name := range s.teamNames() {
		s.replenish(s.Teams[name])
	}

	s.log.WithFields(logrus.Fields{
		"round":         s.RoundNumber,
		"storyteller":   s.StorytellerTeam,
		"deckRemaining": len(s.Deck),
	}).Info("Next round started")
	return applied(NoticeNextRound)
}

// SubmitCard plays the card at index idx from the team's hand. The card moves
// into the played list; the storyteller's submission is additionally cached.
// When every team has played, the session moves to the vote phase with an
// empty vote map.
func (s *Session) SubmitCard(name string, idx int) Outcome {
	if s.Phase != PhaseHand {
		return rejected(RejectWrongPhase)
	}
	team, ok := s.Teams[name]
	if !ok {
		return rejected(RejectUnknownTeam)
	}
	if idx < 0 || idx >= len(team.Hand) {
		return rejected(RejectBadIndex)
	}

	// The card moves from the hand into the played list; it reaches the
	// discard pile only when the round's played cards are cleared, so every
	// card lives in exactly one container at any instant.
	card := team.Hand[idx]
	s.PlayedCards = append(s.PlayedCards, PlayedCard{TeamName: name, Card: card})
	if name == s.StorytellerTeam {
		s.StorytellerCard = card
	}
	team.Hand = append(team.Hand[:idx], team.Hand[idx+1:]...)

	s.log.WithFields(logrus.Fields{
		"team": name,
		"card": card,
	}).Info("Card submitted")

	if len(s.PlayedCards) == len(s.Teams) {
		s.Votes = make(map[string]int)
		s.Phase = PhaseVote
		s.log.WithField("played", len(s.PlayedCards)).Info("All cards in, vote phase started")
		return applied(NoticeVotePhase)
	}
	return applied(NoticeNone)
}

// SubmitVote records a vote for the played card at index idx. The storyteller
// may not vote, a team may not vote for its own card, and each team votes at
// most once. When all non-storyteller teams have voted the round is scored
// and the session moves to results. The threshold counts teamCount-1 voters
// whether or not the storyteller is still connected.
func (s *Session) SubmitVote(name string, idx int) Outcome {
	if s.Phase != PhaseVote {
		return rejected(RejectWrongPhase)
	}
	if _, ok := s.Teams[name]; !ok {
		return rejected(RejectUnknownTeam)
	}
	if name == s.StorytellerTeam {
		s.log.WithField("team", name).Warn("Rejected vote from storyteller")
		return rejected(RejectStorytellerVote)
	}
	if idx < 0 || idx >= len(s.PlayedCards) {
		return rejected(RejectBadIndex)
	}
	if s.PlayedCards[idx].TeamName == name {
		s.log.WithField("team", name).Warn("Rejected vote for own card")
		return rejected(RejectSelfVote)
	}
	if _, already := s.Votes[name]; already {
		return rejected(RejectDuplicateVote)
	}

	s.Votes[name] = idx
	s.log.WithFields(logrus.Fields{
		"team":  name,
		"index": idx,
		"votes": len(s.Votes),
	}).Info("Vote submitted")

	if len(s.Votes) >= len(s.Teams)-1 {
		s.applyScores()
		s.Phase = PhaseResults
		return applied(NoticeResultsPhase)
	}
	return applied(NoticeNone)
}

// applyScores runs the scoring engine and accumulates the deltas onto each
// team's running total. A scoring failure (storyteller card missing from the
// played list) leaves all scores untouched; the round still completes.
func (s *Session) applyScores() {
	deltas, err := ScoreRound(s.PlayedCards, s.Votes, s.Teams, s.StorytellerTeam)
	if err != nil {
		s.log.WithError(err).Warn("Scoring aborted, no score changes")
		return
	}
	for name, delta := range deltas {
		if team, ok := s.Teams[name]; ok {
			team.Score += delta
		}
	}
	fields := logrus.Fields{}
	for name, team := range s.Teams {
		fields[name] = team.Score
	}
	s.log.WithFields(fields).Info("Scores calculated")
}

// RemoveConn destroys the team bound to the given connection. Its remaining
// hand returns to the discard pile and the host reference is cleared if this
// connection held it. Connections with no registered team are a no-op.
func (s *Session) RemoveConn(conn uuid.UUID) Outcome {
	var name string
	var team *Team
	for n, t := range s.Teams {
		if t.Conn == conn {
			name, team = n, t
			break
		}
	}
	if team == nil {
		return rejected(RejectUnknownTeam)
	}

	s.Discard = append(s.Discard, team.Hand...)
	delete(s.Teams, name)
	if s.HostConn == conn {
		s.HostConn = uuid.Nil
	}

	s.log.WithFields(logrus.Fields{
		"team":      name,
		"discarded": len(team.Hand),
	}).Info("Team disconnected and removed")
	return applied(NoticeNone)
}

// Reset returns the session to a pristine lobby: fresh shuffled universe,
// no teams, no storyteller, round 1. Scores are destroyed with the teams.
func (s *Session) Reset() Outcome {
	s.Deck = deck.Shuffle(deck.NewUniverse(s.deckSize))
	s.Discard = nil
	s.Teams = make(map[string]*Team)
	s.StorytellerTeam = ""
	s.StorytellerCard = ""
	s.PlayedCards = nil
	s.Votes = make(map[string]int)
	s.Phase = PhaseLobby
	s.RoundNumber = 1
	s.HostConn = uuid.Nil

	s.log.WithField("deck", len(s.Deck)).Info("Game reset, all teams removed")
	return applied(NoticeNone)
}
