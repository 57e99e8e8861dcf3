// internal/coordinator/client.go
package coordinator

import (
	"log"

	"github.com/google/uuid"
)

// Client is one observer connection. State pushes go through OutChan; a
// write pump owned by the transport layer drains it onto the socket.
type Client struct {
	ID      uuid.UUID
	OutChan chan map[string]interface{}
	Cancel  func()
}

// NewClient builds a client with a fresh connection handle and a buffered
// outbound channel.
func NewClient(cancel func()) *Client {
	id, _ := uuid.NewRandom()
	return &Client{
		ID:      id,
		OutChan: make(chan map[string]interface{}, 16),
		Cancel:  cancel,
	}
}

// Send pushes a message onto OutChan without blocking. Broadcasting is
// fire-and-forget relative to the event loop, so a full or closed channel
// drops the message rather than stalling the next queued event.
func (c *Client) Send(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("client %s: OutChan closed or full, dropped message type %q", c.ID, msgType)
	}
}

// SendError is a convenience to send an error object to this client only.
func (c *Client) SendError(msg string) {
	c.Send(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}
