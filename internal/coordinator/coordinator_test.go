// internal/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablegame/fable/internal/session"
)

// newTestCoordinator spins up a coordinator with a running event loop. The
// loop is torn down when the test finishes.
func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coord := New(logger, session.New(logger, session.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)
	return coord
}

// recvMsg pulls the next pushed message off a client's out channel.
func recvMsg(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-client.OutChan:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a pushed message")
		return nil
	}
}

func assertNoMsg(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.OutChan:
		t.Fatalf("unexpected message pushed: %v", msg)
	default:
	}
}

func TestAppliedEventBroadcastsStateUpdate(t *testing.T) {
	coord := newTestCoordinator(t)
	client := NewClient(func() {})
	coord.Attach(client)

	out := coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: uuid.New()})
	require.True(t, out.Applied)

	msg := recvMsg(t, client)
	assert.Equal(t, "gameStateUpdate", msg["type"])

	state, ok := msg["state"].(Snapshot)
	require.True(t, ok)
	require.Contains(t, state.Teams, "alpha")
	assert.Len(t, state.Teams["alpha"].Hand, 6)
	assert.Equal(t, "lobby", state.CurrentPhase)
	assert.Equal(t, 1, state.RoundNumber)
}

func TestRejectedEventIsSilent(t *testing.T) {
	coord := newTestCoordinator(t)
	client := NewClient(func() {})
	coord.Attach(client)

	out := coord.Dispatch(Event{Type: EventSubmitCard, TeamName: "nobody", Index: 0})

	assert.False(t, out.Applied)
	assert.Equal(t, session.RejectWrongPhase, out.Reason)
	assertNoMsg(t, client)
}

func TestPhaseNoticeFollowsStateUpdate(t *testing.T) {
	coord := newTestCoordinator(t)
	client := NewClient(func() {})
	coord.Attach(client)

	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: uuid.New()}).Applied)
	recvMsg(t, client) // registration state update

	out := coord.Dispatch(Event{Type: EventNextRound})
	require.True(t, out.Applied)
	require.Equal(t, session.NoticeNextRound, out.Notice)

	first := recvMsg(t, client)
	assert.Equal(t, "gameStateUpdate", first["type"])
	second := recvMsg(t, client)
	assert.Equal(t, "nextRoundStarted", second["type"])
}

func TestUnknownEventRejected(t *testing.T) {
	coord := newTestCoordinator(t)

	out := coord.Dispatch(Event{Type: "teleport"})

	assert.False(t, out.Applied)
	assert.Equal(t, session.RejectUnknownEvent, out.Reason)
}

func TestSnapshotServesCurrentState(t *testing.T) {
	coord := newTestCoordinator(t)
	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", IsHost: true, Conn: uuid.New()}).Applied)
	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "bravo", Conn: uuid.New()}).Applied)

	snap := coord.Snapshot()

	assert.Len(t, snap.Teams, 2)
	assert.True(t, snap.Teams["alpha"].IsHost)
	assert.Equal(t, "alpha", snap.HostTeam)
	assert.Equal(t, "lobby", snap.CurrentPhase)
	assert.Empty(t, snap.PlayedCards)
	assert.Empty(t, snap.Votes)
}

func TestDetachStopsDelivery(t *testing.T) {
	coord := newTestCoordinator(t)
	client := NewClient(func() {})
	coord.Attach(client)

	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: uuid.New()}).Applied)
	recvMsg(t, client)

	coord.Detach(client.ID)
	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "bravo", Conn: uuid.New()}).Applied)

	coord.Snapshot() // fence: the loop has drained the detach and the event
	assertNoMsg(t, client)
}

func TestDisconnectEventRemovesTeam(t *testing.T) {
	coord := newTestCoordinator(t)
	conn := uuid.New()
	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: conn}).Applied)

	out := coord.Dispatch(Event{Type: EventDisconnect, Conn: conn})
	require.True(t, out.Applied)

	snap := coord.Snapshot()
	assert.NotContains(t, snap.Teams, "alpha")
}

func TestDisconnectWithoutTeamIsSilentlyIgnored(t *testing.T) {
	coord := newTestCoordinator(t)
	client := NewClient(func() {})
	coord.Attach(client)

	out := coord.Dispatch(Event{Type: EventDisconnect, Conn: uuid.New()})

	assert.False(t, out.Applied)
	assertNoMsg(t, client)
}

func TestRecordFnReceivesAppliedEventsOnly(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coord := New(logger, session.New(logger, session.Config{}))

	type recorded struct {
		actionType string
		team       string
		payload    map[string]interface{}
	}
	records := make(chan recorded, 8)
	coord.RecordFn = func(actionType, team string, payload map[string]interface{}) {
		records <- recorded{actionType, team, payload}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)

	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", IsHost: true, Conn: uuid.New()}).Applied)
	require.False(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: uuid.New()}).Applied)

	select {
	case rec := <-records:
		assert.Equal(t, "registerTeam", rec.actionType)
		assert.Equal(t, "alpha", rec.team)
		assert.Equal(t, true, rec.payload["isHost"])
		assert.Equal(t, "lobby", rec.payload["phase"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a record")
	}

	select {
	case rec := <-records:
		t.Fatalf("rejected event must not be recorded, got %v", rec)
	default:
	}
}

func TestSnapshotHandsAreCopies(t *testing.T) {
	coord := newTestCoordinator(t)
	require.True(t, coord.Dispatch(Event{Type: EventRegisterTeam, TeamName: "alpha", Conn: uuid.New()}).Applied)

	snap := coord.Snapshot()
	snap.Teams["alpha"].Hand[0] = "tampered"

	again := coord.Snapshot()
	assert.NotEqual(t, "tampered", again.Teams["alpha"].Hand[0])
}
