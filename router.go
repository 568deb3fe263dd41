package main

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Router dispatches inbound messages to the room named by their code.
// Validation failures are reported to the sender only; references to rooms
// that no longer exist mostly degrade to silent no-ops, matching the
// best-effort posture of the rest of the protocol.
type Router struct {
	rooms *Registry
}

func newRouter(rooms *Registry) *Router {
	return &Router{rooms: rooms}
}

func (rt *Router) dispatch(c *Client, msg ClientMessage) {
	switch msg.Type {
	case msgJoinRoom:
		// Validate identity before the room exists, so a bad join can never
		// leave an empty room behind.
		if strings.TrimSpace(msg.Pseudo) == "" {
			c.deliver(errorMessage(ErrInvalidIdentity))

			return
		}

		rt.rooms.getOrCreate(msg.Code).post(envelope{msg: msg, from: c})

	case msgStartGame:
		room, ok := rt.rooms.lookup(msg.Code)
		if !ok {
			c.deliver(errorMessage(ErrCannotStart))

			return
		}

		room.post(envelope{msg: msg, from: c})

	case msgNextRound:
		room, ok := rt.rooms.lookup(msg.Code)
		if !ok {
			c.deliver(errorMessage(ErrEmptyQueue))

			return
		}

		room.post(envelope{msg: msg, from: c})

	case msgSubmitPosts, msgAddMedia, msgGetCurrentRound, msgDenounce,
		msgGetPlayers, msgVote, msgRevealVotes, msgRequestReveal,
		msgGetEndStats, msgGoToEnd:
		if room, ok := rt.rooms.lookup(msg.Code); ok {
			room.post(envelope{msg: msg, from: c})
		}

	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

// disconnect reaps the departed connection from every live room. A connection
// is assumed to be bound to at most one player across all rooms; the scan is
// still room-wide because the binding lives inside each room's goroutine.
func (rt *Router) disconnect(c *Client) {
	for _, room := range rt.rooms.all() {
		room.dropConnection(c.id)
	}

	log.Debug().Str("connection", c.id).Msg("connection closed")
}
