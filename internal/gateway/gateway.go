package gateway

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/errors"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/realtime"
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20 // full snapshots can be large
	sendBuffer     = 64
)

// Frame is the single message shape exchanged with websocket clients.
// Inbound: track, canvas_change, cursor_move. Outbound: presence,
// canvas_change, cursor_move.
type Frame struct {
	Event       string             `json:"event"`
	Member      *realtime.Member   `json:"member,omitempty"`
	Members     []realtime.Member  `json:"members,omitempty"`
	Envelope    *realtime.Envelope `json:"envelope,omitempty"`
	CursorOwner string             `json:"cursor_owner,omitempty"`
	Cursor      *realtime.Cursor   `json:"cursor,omitempty"`
}

const (
	frameTrack    = "track"
	framePresence = "presence"
)

// Gateway relays remote participants' websocket connections onto the
// realtime transport, so browser clients and in-process sessions share
// the same document channels.
type Gateway struct {
	transport realtime.Transport
	upgrader  websocket.Upgrader
}

func New(transport realtime.Transport) *Gateway {
	return &Gateway{
		transport: transport,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth happens in middleware; cross-origin is allowed the
			// same way the REST API's CORS policy allows it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades GET /realtime/canvases/:id into a relay connection.
func (g *Gateway) Handle(c *gin.Context) {
	canvasID := c.Param("id")
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.Error(errors.Unauthorized("Missing identity", nil))
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("gateway: upgrade failed: %v", err)
		return
	}

	relay := &relay{
		gateway:  g,
		conn:     conn,
		identity: ident,
		canvasID: canvasID,
		send:     make(chan Frame, sendBuffer),
		quit:     make(chan struct{}),
	}
	relay.run(c)
}

// relay bridges one websocket connection and one transport channel. The
// send channel is never closed: transport handlers may still be draining
// buffered events after Leave returns, so teardown is signalled on quit
// instead.
type relay struct {
	gateway  *Gateway
	conn     *websocket.Conn
	identity domain.Identity
	canvasID string
	send     chan Frame
	quit     chan struct{}
}

func (r *relay) run(c *gin.Context) {
	defer r.conn.Close()
	r.conn.SetReadLimit(maxMessageSize)

	handlers := realtime.Handlers{
		OnPresence: func(members []realtime.Member) {
			r.enqueue(Frame{Event: framePresence, Members: members})
		},
		OnChange: func(env realtime.Envelope) {
			e := env
			r.enqueue(Frame{Event: realtime.EventCanvasChange, Envelope: &e})
		},
		OnCursor: func(participantID string, cursor realtime.Cursor) {
			cur := cursor
			r.enqueue(Frame{Event: realtime.EventCursorMove, CursorOwner: participantID, Cursor: &cur})
		},
	}

	topic := "canvas:" + r.canvasID
	channel, err := r.gateway.transport.Join(c.Request.Context(), topic, r.identity.UserID, handlers)
	if err != nil {
		log.Printf("gateway: join failed for %s: %v", topic, err)
		return
	}

	done := make(chan struct{})
	go r.writePump(done)

	r.readPump(channel)

	// Reader finished: the socket is gone. Remove presence and stop the
	// writer.
	if err := channel.Leave(context.Background()); err != nil {
		log.Printf("gateway: leave failed for %s: %v", topic, err)
	}
	close(r.quit)
	<-done
}

func (r *relay) readPump(channel realtime.Channel) {
	ctx := context.Background()
	for {
		var frame Frame
		if err := r.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: read failed: %v", err)
			}
			return
		}

		switch frame.Event {
		case frameTrack:
			if frame.Member == nil {
				continue
			}
			member := *frame.Member
			// The presence key is the authenticated id, whatever the
			// client claims.
			member.ID = r.identity.UserID
			if member.Name == "" {
				member.Name = r.identity.Name
			}
			if err := channel.Track(ctx, member); err != nil {
				log.Printf("gateway: track failed: %v", err)
			}
		case realtime.EventCanvasChange:
			if frame.Envelope == nil {
				continue
			}
			env := *frame.Envelope
			env.OriginatorID = r.identity.UserID
			if env.EmittedAt == 0 {
				env.EmittedAt = time.Now().UnixMilli()
			}
			if err := channel.BroadcastChange(ctx, env); err != nil {
				log.Printf("gateway: change broadcast failed: %v", err)
			}
		case realtime.EventCursorMove:
			if frame.Cursor == nil {
				continue
			}
			if err := channel.BroadcastCursor(ctx, r.identity.UserID, *frame.Cursor); err != nil {
				log.Printf("gateway: cursor broadcast failed: %v", err)
			}
		default:
			log.Printf("gateway: unknown frame event %q", frame.Event)
		}
	}
}

func (r *relay) writePump(done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-r.send:
			r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteJSON(frame); err != nil {
				// Keep consuming so enqueue keeps finding buffer space.
				continue
			}
		case <-r.quit:
			r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (r *relay) enqueue(frame Frame) {
	select {
	case r.send <- frame:
	default:
		log.Printf("gateway: dropping frame for slow client %s", r.identity.UserID)
	}
}
