// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fablegame/fable/internal/coordinator"
	"github.com/fablegame/fable/internal/middleware"
)

// clientMessage is the envelope for every inbound WebSocket message. Index
// fields are pointers so a missing index can be told apart from index 0.
type clientMessage struct {
	Type           string `json:"type"`
	TeamName       string `json:"teamName"`
	IsHost         bool   `json:"isHost"`
	CardIndex      *int   `json:"cardIndex"`
	VotedCardIndex *int   `json:"votedCardIndex"`
}

// GameWSHandler upgrades the connection, attaches it to the coordinator's
// observer set, and pumps messages both ways until the client goes away.
// Connection loss fires the implicit disconnect event, which removes the
// team bound to this connection.
func GameWSHandler(logger *logrus.Logger, coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"fable"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "fable" {
			c.Close(BadSubprotocolError, "client must speak the fable subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := coordinator.NewClient(cancel)
		coord.Attach(client)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		go writePump(ctx, c, client, logger)
		readPump(ctx, c, coord, client, logger)

		// The read pump exited: the connection is gone. Disconnect is a
		// serialized event like any other, so it cannot race a submission
		// arriving from the same team.
		coord.Dispatch(coordinator.Event{Type: coordinator.EventDisconnect, Conn: client.ID})
		coord.Detach(client.ID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readPump reads client messages, translates them into coordinator events,
// and dispatches them. Malformed input earns an error message on this
// connection only; the session state is untouched.
func readPump(ctx context.Context, c *websocket.Conn, coord *coordinator.Coordinator, client *coordinator.Client, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for conn %s", client.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for conn %s", client.ID)
			} else {
				logger.Warnf("WebSocket read error for conn %s: %v (status: %d)", client.ID, err, status)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("Ignoring non-text message type %d from conn %s", typ, client.ID)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from conn %s: %v", client.ID, err)
			client.SendError("Invalid JSON format")
			continue
		}

		if msg.Type == "ping" {
			client.Send(map[string]interface{}{"type": "pong"})
			continue
		}

		ev, perr := toEvent(msg, client)
		if perr != "" {
			client.SendError(perr)
			continue
		}
		out := coord.Dispatch(ev)
		if !out.Applied {
			logger.WithFields(logrus.Fields{
				"conn":   client.ID,
				"event":  msg.Type,
				"reason": out.Reason,
			}).Debug("Client event rejected")
		}
	}
}

// toEvent validates the message envelope and builds the coordinator event.
// Returns a non-empty error string for structurally broken messages; game
// rule violations are judged later, inside the serialized loop.
func toEvent(msg clientMessage, client *coordinator.Client) (coordinator.Event, string) {
	ev := coordinator.Event{TeamName: msg.TeamName, Conn: client.ID}
	switch msg.Type {
	case "registerTeam":
		ev.Type = coordinator.EventRegisterTeam
		ev.IsHost = msg.IsHost
	case "submitCard":
		if msg.CardIndex == nil {
			return ev, "submitCard requires cardIndex"
		}
		ev.Type = coordinator.EventSubmitCard
		ev.Index = *msg.CardIndex
	case "submitVote":
		if msg.VotedCardIndex == nil {
			return ev, "submitVote requires votedCardIndex"
		}
		ev.Type = coordinator.EventSubmitVote
		ev.Index = *msg.VotedCardIndex
	case "nextRound":
		ev.Type = coordinator.EventNextRound
	case "resetGame":
		ev.Type = coordinator.EventResetGame
	case "setHost":
		ev.Type = coordinator.EventSetHost
	default:
		return ev, fmt.Sprintf("Unknown action type: %s", msg.Type)
	}
	return ev, ""
}

// writePump drains the client's outbound channel onto the socket and keeps
// the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, client *coordinator.Client, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Failed to marshal outgoing message for conn %s: %v", client.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write to websocket for conn %s: %v", client.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Ping failed for conn %s: %v, assuming disconnect", client.ID, err)
				return
			}
		}
	}
}
