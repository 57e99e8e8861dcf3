// internal/session/session.go
package session

import (
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fablegame/fable/internal/deck"
)

// Phase is the current stage of a round. The client-side "waiting" screen has
// no server-side phase; the server only ever reports one of these four.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseHand    Phase = "hand"
	PhaseVote    Phase = "vote"
	PhaseResults Phase = "results"
)

// Team is a registered team record, keyed by its case-sensitive display name.
// The connection handle ties the team to one live connection; when that
// connection drops the team is destroyed and its score is lost.
type Team struct {
	Hand   []string
	Score  int
	Conn   uuid.UUID
	IsHost bool
}

// PlayedCard pairs a submitted card with the team that played it. The list of
// played cards for a round is append-only and cleared when the round ends.
type PlayedCard struct {
	TeamName string `json:"teamName"`
	Card     string `json:"card"`
}

// Config carries session tunables. Zero values select the defaults.
type Config struct {
	DeckSize int // card universe size, default 108
	HandSize int // per-team hand target, default 6
}

const defaultHandSize = 6

// Session is the single authoritative game state. It is NOT safe for
// concurrent use: the coordinator serializes every mutation through one
// event loop, so no method here takes a lock.
type Session struct {
	Teams           map[string]*Team
	StorytellerTeam string
	StorytellerCard string
	PlayedCards     []PlayedCard
	Votes           map[string]int
	Phase           Phase
	RoundNumber     int

	// HostConn is the connection currently holding the facilitator role.
	// Not enforced unique: last registerTeam/setHost with isHost wins.
	HostConn uuid.UUID

	// Deck and Discard are server secrets, never included in snapshots.
	Deck    []string
	Discard []string

	deckSize int
	handSize int

	log *logrus.Logger
}

// New builds a fresh session in the lobby phase with a fully shuffled deck.
func New(logger *logrus.Logger, cfg Config) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.DeckSize <= 0 {
		cfg.DeckSize = deck.DefaultUniverseSize
	}
	if cfg.HandSize <= 0 {
		cfg.HandSize = defaultHandSize
	}
	return &Session{
		Teams:       make(map[string]*Team),
		Votes:       make(map[string]int),
		Phase:       PhaseLobby,
		RoundNumber: 1,
		Deck:        deck.Shuffle(deck.NewUniverse(cfg.DeckSize)),
		deckSize:    cfg.DeckSize,
		handSize:    cfg.HandSize,
		log:         logger,
	}
}

// HandSize reports the per-team hand target.
func (s *Session) HandSize() int { return s.handSize }

// HostTeam returns the name of the team currently flagged as host, or "".
// With multiple flagged teams (last-write-wins semantics) the one holding
// the live host connection reference is preferred.
func (s *Session) HostTeam() string {
	fallback := ""
	for _, name := range s.teamNames() {
		t := s.Teams[name]
		if !t.IsHost {
			continue
		}
		if t.Conn == s.HostConn && s.HostConn != uuid.Nil {
			return name
		}
		if fallback == "" {
			fallback = name
		}
	}
	return fallback
}

// teamNames returns all registered team names in sorted order.
func (s *Session) teamNames() []string {
	names := make([]string, 0, len(s.Teams))
	for name := range s.Teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pickStoryteller selects a team uniformly at random. A team may be chosen
// twice in a row; there is no exclusion memory.
func (s *Session) pickStoryteller() string {
	names := s.teamNames()
	if len(names) == 0 {
		return ""
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return names[r.Intn(len(names))]
}

// drawCards removes n cards from the top of the deck, folding the discard
// pile back in first whenever the deck alone cannot satisfy the draw.
func (s *Session) drawCards(n int) []string {
	if n > len(s.Deck) && len(s.Discard) > 0 {
		s.log.WithFields(logrus.Fields{
			"deck":    len(s.Deck),
			"discard": len(s.Discard),
		}).Info("Reshuffling discard pile into deck")
		s.Deck = deck.Shuffle(append(s.Deck, s.Discard...))
		s.Discard = nil
	}
	dealt, remaining := deck.Deal(s.Deck, n)
	s.Deck = remaining
	return dealt
}

// replenish tops up a team's hand to the configured hand size.
func (s *Session) replenish(t *Team) {
	need := s.handSize - len(t.Hand)
	if need > 0 {
		t.Hand = append(t.Hand, s.drawCards(need)...)
	}
}
