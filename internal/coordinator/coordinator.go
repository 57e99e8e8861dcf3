// internal/coordinator/coordinator.go
package coordinator

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fablegame/fable/internal/session"
)

// RecordFunc receives one record per applied event for out-of-band history
// capture. Implementations must not block: the event loop calls it inline
// between applying a transition and accepting the next event.
type RecordFunc func(actionType string, team string, payload map[string]interface{})

// TeamView is the broadcast-safe projection of a team record. Hands are
// visible to every client (each presentation layer filters its own view);
// only the undealt deck and the discard pile are server secrets.
type TeamView struct {
	Hand   []string `json:"hand"`
	Score  int      `json:"score"`
	IsHost bool     `json:"isHost"`
}

// Snapshot is the full redacted session state pushed to clients after every
// applied transition and served to polling clients.
type Snapshot struct {
	Teams           map[string]TeamView  `json:"teams"`
	StorytellerTeam string               `json:"storytellerTeam"`
	StorytellerCard string               `json:"storytellerCard"`
	PlayedCards     []session.PlayedCard `json:"playedCards"`
	Votes           map[string]int       `json:"votes"`
	CurrentPhase    string               `json:"currentPhase"`
	RoundNumber     int                  `json:"roundNumber"`
	HostTeam        string               `json:"hostTeam"`
}

// command is one unit of work for the event loop. Exactly one of ev, attach,
// detach, or snap is set.
type command struct {
	ev      *Event
	attach  *Client
	detach  uuid.UUID
	outcome chan session.Outcome
	snap    chan Snapshot
}

// Coordinator owns the session and serializes every mutation through a
// single event loop: one command is drained and fully applied at a time, so
// no two transitions can interleave. Broadcasts are fire-and-forget; the
// loop never waits on a client before accepting the next event.
type Coordinator struct {
	sess      *session.Session
	log       *logrus.Logger
	cmds      chan command
	observers map[uuid.UUID]*Client

	// RecordFn, when set, is invoked once per applied event. Wired to the
	// historian queue by the server entrypoint; nil disables recording.
	RecordFn RecordFunc
}

// New builds a coordinator around an existing session. Run must be started
// before any Dispatch/Attach/Snapshot call will complete.
func New(logger *logrus.Logger, sess *session.Session) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		sess:      sess,
		log:       logger,
		cmds:      make(chan command, 64),
		observers: make(map[uuid.UUID]*Client),
	}
}

// Run drains the command queue until ctx is cancelled. It is the only
// goroutine that ever touches the session.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("Session coordinator loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Session coordinator loop stopped")
			return
		case cmd := <-c.cmds:
			c.handle(cmd)
		}
	}
}

func (c *Coordinator) handle(cmd command) {
	switch {
	case cmd.attach != nil:
		c.observers[cmd.attach.ID] = cmd.attach
		c.log.WithField("conn", cmd.attach.ID).Debug("Observer attached")
	case cmd.detach != uuid.Nil:
		delete(c.observers, cmd.detach)
		c.log.WithField("conn", cmd.detach).Debug("Observer detached")
	case cmd.snap != nil:
		cmd.snap <- c.snapshot()
	case cmd.ev != nil:
		out := c.apply(*cmd.ev)
		if out.Applied {
			c.broadcast(map[string]interface{}{
				"type":  "gameStateUpdate",
				"state": c.snapshot(),
			})
			if out.Notice != session.NoticeNone {
				c.broadcast(map[string]interface{}{"type": string(out.Notice)})
			}
			c.record(*cmd.ev)
		} else {
			c.log.WithFields(logrus.Fields{
				"event":  cmd.ev.Type,
				"team":   cmd.ev.TeamName,
				"reason": out.Reason,
			}).Debug("Event rejected")
		}
		if cmd.outcome != nil {
			cmd.outcome <- out
		}
	}
}

// apply routes one pre-validated event to the matching session transition.
func (c *Coordinator) apply(ev Event) session.Outcome {
	switch ev.Type {
	case EventRegisterTeam:
		return c.sess.RegisterTeam(ev.TeamName, ev.IsHost, ev.Conn)
	case EventSubmitCard:
		return c.sess.SubmitCard(ev.TeamName, ev.Index)
	case EventSubmitVote:
		return c.sess.SubmitVote(ev.TeamName, ev.Index)
	case EventNextRound:
		return c.sess.NextRound()
	case EventResetGame:
		return c.sess.Reset()
	case EventSetHost:
		return c.sess.SetHost(ev.TeamName)
	case EventDisconnect:
		return c.sess.RemoveConn(ev.Conn)
	default:
		return session.Outcome{Reason: session.RejectUnknownEvent}
	}
}

// Dispatch queues one event and blocks until the loop has applied it and
// broadcast any resulting state, then returns the tagged outcome.
func (c *Coordinator) Dispatch(ev Event) session.Outcome {
	reply := make(chan session.Outcome, 1)
	c.cmds <- command{ev: &ev, outcome: reply}
	return <-reply
}

// Attach registers a new observer connection. Joining never quiesces the
// loop; the new observer starts receiving pushes with the next applied event.
func (c *Coordinator) Attach(client *Client) {
	c.cmds <- command{attach: client}
}

// Detach removes an observer. Disconnection of its team is a separate,
// serialized disconnect event.
func (c *Coordinator) Detach(id uuid.UUID) {
	c.cmds <- command{detach: id}
}

// Snapshot returns the current redacted state for polling clients. The read
// goes through the command queue so it can never observe a half-applied
// transition.
func (c *Coordinator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.cmds <- command{snap: reply}
	return <-reply
}

// snapshot copies the session state minus the deck and discard pile.
func (c *Coordinator) snapshot() Snapshot {
	teams := make(map[string]TeamView, len(c.sess.Teams))
	for name, t := range c.sess.Teams {
		hand := make([]string, len(t.Hand))
		copy(hand, t.Hand)
		teams[name] = TeamView{Hand: hand, Score: t.Score, IsHost: t.IsHost}
	}
	played := make([]session.PlayedCard, len(c.sess.PlayedCards))
	copy(played, c.sess.PlayedCards)
	votes := make(map[string]int, len(c.sess.Votes))
	for name, idx := range c.sess.Votes {
		votes[name] = idx
	}
	return Snapshot{
		Teams:           teams,
		StorytellerTeam: c.sess.StorytellerTeam,
		StorytellerCard: c.sess.StorytellerCard,
		PlayedCards:     played,
		Votes:           votes,
		CurrentPhase:    string(c.sess.Phase),
		RoundNumber:     c.sess.RoundNumber,
		HostTeam:        c.sess.HostTeam(),
	}
}

func (c *Coordinator) broadcast(msg map[string]interface{}) {
	for _, client := range c.observers {
		client.Send(msg)
	}
}

func (c *Coordinator) record(ev Event) {
	if c.RecordFn == nil {
		return
	}
	payload := map[string]interface{}{}
	switch ev.Type {
	case EventSubmitCard, EventSubmitVote:
		payload["index"] = ev.Index
	case EventRegisterTeam:
		payload["isHost"] = ev.IsHost
	}
	payload["phase"] = string(c.sess.Phase)
	payload["round"] = c.sess.RoundNumber
	c.RecordFn(string(ev.Type), ev.TeamName, payload)
}
