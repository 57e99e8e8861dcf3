// internal/coordinator/events.go
package coordinator

import "github.com/google/uuid"

// EventType is the inbound event vocabulary. Names match the wire protocol.
type EventType string

const (
	EventRegisterTeam EventType = "registerTeam"
	EventSubmitCard   EventType = "submitCard"
	EventSubmitVote   EventType = "submitVote"
	EventNextRound    EventType = "nextRound"
	EventResetGame    EventType = "resetGame"
	EventSetHost      EventType = "setHost"
	EventDisconnect   EventType = "disconnect"
)

// Event is one validated inbound client event. Index carries the card index
// for submitCard and the played-card index for submitVote; Conn identifies
// the originating connection.
type Event struct {
	Type     EventType
	TeamName string
	Index    int
	IsHost   bool
	Conn     uuid.UUID
}
