package ws

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/playmatatu/plinko/internal/drops"
	"github.com/playmatatu/plinko/internal/plinko"
	"github.com/playmatatu/plinko/internal/presets"
)

// DropData is the payload of a "drop" message.
type DropData struct {
	Multiplier         float64  `json:"multiplier"`
	Bucket             *int     `json:"bucket,omitempty"`
	MultiplierOverride *float64 `json:"multiplier_override,omitempty"`
	ClientSeed         string   `json:"client_seed,omitempty"`
	Nonce              uint64   `json:"nonce,omitempty"`
}

// Serve upgrades the request and streams a live board for operator. The
// caller has already authenticated the operator and resolved the preset.
func (h *Hub) Serve(c *gin.Context, operator string, preset presets.Preset) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		id:       uuid.New().String(),
		operator: operator,
		board:    preset.Name,
		send:     make(chan []byte, 256),
		cmds:     make(chan WSMessage, 16),
		joined:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if !h.join(client) {
		log.Printf("[WS] hub stopped, rejecting client %s", client.id)
		conn.Close()
		return
	}

	go client.writePump()
	go h.runSession(client, preset)
	go h.readPump(client)
}

// readPump reads client messages and hands them to the session.
func (h *Hub) readPump(c *Client) {
	defer func() {
		close(c.done)
		h.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] unexpected close for client %s: %v", c.id, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, "Invalid message")
			continue
		}

		select {
		case c.cmds <- msg:
		default:
			h.sendError(c, "Too many pending messages")
		}
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.SendToClient(c, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// session owns one client's simulation. Only the session goroutine touches
// sim.
type session struct {
	hub     *Hub
	client  *Client
	preset  presets.Preset
	sim     *plinko.Simulation
	pending []plinko.ContactEvent
}

func (h *Hub) runSession(c *Client, preset presets.Preset) {
	s := &session{hub: h, client: c, preset: preset}
	cfg := preset.Config()
	cfg.OnContact = plinko.ContactListenerFunc(func(ev plinko.ContactEvent) {
		s.pending = append(s.pending, ev)
	})
	sim, err := plinko.New(cfg)
	if err != nil {
		log.Printf("[WS] cannot build board %s for client %s: %v", preset.Name, c.id, err)
		h.sendError(c, "Board unavailable")
		c.conn.Close()
		return
	}
	s.sim = sim
	defer sim.Teardown()

	select {
	case <-c.joined:
	case <-c.done:
		return
	}
	s.sendBoard()

	ticker := time.NewTicker(time.Second / time.Duration(h.frameRate))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.cmds:
			s.handleMessage(msg)

		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			s.tick(elapsed)
		}
	}
}

func (s *session) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "drop":
		var data DropData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.hub.sendError(s.client, "Invalid drop data")
			return
		}
		s.handleDrop(data)

	case "reset":
		s.sim.Reset()
		s.pending = nil
		s.sendReady()

	case "get_state":
		s.sendBoard()

	default:
		s.hub.sendError(s.client, "Unknown message type")
	}
}

func (s *session) handleDrop(data DropData) {
	if s.sim.State() == plinko.StateRunning {
		s.hub.sendError(s.client, plinko.ErrRunActive.Error())
		return
	}

	req := plinko.RunRequest{
		Multiplier:         data.Multiplier,
		Bucket:             data.Bucket,
		MultiplierOverride: data.MultiplierOverride,
	}
	if s.sim.State() == plinko.StateSettled || data.ClientSeed != "" || data.Nonce != 0 {
		s.sim.ResetWithSeed(plinko.NewSeed(data.ClientSeed, data.Nonce))
		s.pending = nil
	}
	if err := s.sim.RunWith(req); err != nil {
		if errors.Is(err, plinko.ErrInvalidOutcome) {
			s.hub.sendError(s.client, err.Error())
			return
		}
		log.Printf("[WS] drop failed for client %s: %v", s.client.id, err)
		s.hub.sendError(s.client, "Drop failed")
		return
	}

	seed := s.sim.Seed()
	s.hub.SendToClient(s.client, map[string]interface{}{
		"type":             "drop_started",
		"multiplier":       data.Multiplier,
		"server_seed_hash": seed.ServerSeedHash(),
		"client_seed":      seed.ClientSeed,
		"nonce":            seed.Nonce,
	})
}

// tick advances the simulation by the real time since the last tick and
// streams what happened.
func (s *session) tick(elapsed time.Duration) {
	running := s.sim.State() == plinko.StateRunning
	if !running && !s.sim.Settling() {
		return
	}
	s.sim.Step(elapsed)

	for _, ev := range s.pending {
		s.hub.SendToClient(s.client, map[string]interface{}{
			"type":  "contact",
			"event": ev,
		})
	}
	s.pending = s.pending[:0]

	if ball, ok := s.sim.Ball(); ok {
		s.hub.SendToClient(s.client, map[string]interface{}{
			"type":     "frame",
			"position": ball.Position,
			"velocity": ball.Velocity,
		})
	}

	// A landed ball keeps streaming frames while it settles, but the
	// outcome is reported once.
	if !running || s.sim.State() != plinko.StateSettled {
		return
	}
	res, _ := s.sim.Result()
	s.hub.SendToClient(s.client, map[string]interface{}{
		"type":   "settled",
		"result": res,
		"seed":   res.Seed,
	})
	s.hub.announce(drops.Published{
		ID:                uuid.New().String(),
		Board:             s.preset.Name,
		Bucket:            res.Bucket,
		DisplayMultiplier: res.DisplayMultiplier,
		Forced:            res.Forced,
		Origin:            s.client.id,
	})
}

func (s *session) sendBoard() {
	s.hub.SendToClient(s.client, map[string]interface{}{
		"type":      "board",
		"client_id": s.client.id,
		"board":     s.preset.Name,
		"width":     s.sim.Width(),
		"height":    s.sim.Height(),
		"bodies":    s.sim.Bodies(),
		"state":     s.sim.State().String(),
	})
}

func (s *session) sendReady() {
	ball, _ := s.sim.Ball()
	s.hub.SendToClient(s.client, map[string]interface{}{
		"type":     "ready",
		"position": ball.Position,
	})
}
