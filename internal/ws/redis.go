package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playmatatu/plinko/internal/drops"
	rds "github.com/playmatatu/plinko/internal/redis"
)

// StartDropSubscriber relays drops settled on any instance to the
// spectators of their board on this one.
func (h *Hub) StartDropSubscriber(ctx context.Context) {
	if h.rdb == nil {
		log.Println("[WS] Redis client not set; drop subscriber not started")
		return
	}

	pubsub := h.rdb.Subscribe(ctx, rds.DropsChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] %s subscriber started", rds.DropsChannel)
		for msg := range ch {
			var p drops.Published
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				log.Printf("[WS] invalid drop payload: %v", err)
				continue
			}
			if p.Board == "" {
				log.Printf("[WS] drop %s without a board; ignored", p.ID)
				continue
			}
			if h.RoomSize(p.Board) == 0 {
				continue
			}
			h.BroadcastToBoard(p.Board, feedMessage(p))
		}
	}()
}
