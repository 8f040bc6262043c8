package aibridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is the outbound websocket link to the AI bridge. Everything is
// fire-and-forget: events queue into a bounded buffer and a single write
// loop ships them; a full buffer drops the event rather than backing up a
// chat mutation.
type Client struct {
	url    string
	send   chan event
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type event struct {
	Type        string `json:"type"` // activate, deactivate, visitor_message
	WorkspaceID string `json:"workspace_id"`
	RoomID      string `json:"room_id"`
	Content     string `json:"content,omitempty"`
}

func NewClient(url string, log zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:    url,
		send:   make(chan event, 256),
		log:    log.With().Str("component", "aibridge").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.writePump()
	return c
}

func (c *Client) Activate(workspaceID, roomID string) {
	c.push(event{Type: "activate", WorkspaceID: workspaceID, RoomID: roomID})
}

func (c *Client) Deactivate(workspaceID, roomID string) {
	c.push(event{Type: "deactivate", WorkspaceID: workspaceID, RoomID: roomID})
}

func (c *Client) VisitorMessage(workspaceID, roomID, content string) {
	c.push(event{Type: "visitor_message", WorkspaceID: workspaceID, RoomID: roomID, Content: content})
}

func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Client) push(ev event) {
	select {
	case c.send <- ev:
	default:
		c.log.Warn().Str("type", ev.Type).Str("room", ev.RoomID).Msg("bridge buffer full, dropping event")
	}
}

// writePump owns the connection. It dials lazily, redials on write failure
// and keeps the link alive with pings.
func (c *Client) writePump() {
	defer c.wg.Done()

	var conn *websocket.Conn
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		if conn != nil {
			conn.Close()
		}
	}()

	dial := func() *websocket.Conn {
		dialed, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warn().Err(err).Msg("bridge dial failed")
			return nil
		}
		return dialed
	}

	for {
		select {
		case <-c.ctx.Done():
			return

		case ev := <-c.send:
			if conn == nil {
				if conn = dial(); conn == nil {
					continue
				}
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				c.log.Warn().Err(err).Str("type", ev.Type).Msg("bridge write failed")
				conn.Close()
				conn = nil
			}

		case <-ticker.C:
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				conn = nil
			}
		}
	}
}
