package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry maps room codes to live rooms. Rooms are created on first join and
// remove themselves when their last player disconnects; the reaper catches
// rooms whose clients stopped talking without ever hanging up.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	roundDuration  time.Duration
	sessionTimeout time.Duration
}

func newRegistry(cfg *Config) *Registry {
	return &Registry{
		rooms:          make(map[string]*Room),
		roundDuration:  cfg.roundDuration,
		sessionTimeout: cfg.sessionTimeout,
	}
}

// getOrCreate returns the room for a code, starting its goroutine if the code
// is new.
func (g *Registry) getOrCreate(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[code]; ok {
		return room
	}

	room := newRoom(code, g.roundDuration, g)
	g.rooms[code] = room
	go room.run()

	log.Info().Str("room", code).Msg("room created")

	return room
}

func (g *Registry) lookup(code string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[code]

	return room, ok
}

// remove drops the room from the registry. Idempotent; called by a room
// reaping its last player, and by the idle reaper.
func (g *Registry) remove(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.rooms[code]; !ok {
		return
	}

	delete(g.rooms, code)

	log.Info().Str("room", code).Msg("room removed")
}

func (g *Registry) all() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

// reaperLoop periodically shuts down rooms idle longer than sessionTimeout.
func (g *Registry) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(g.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-g.sessionTimeout)

			for _, room := range g.all() {
				if room.idleSince().Before(cutoff) {
					g.remove(room.code)
					room.shutdown()

					log.Info().Str("room", room.code).Msg("idle room reaped")
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
