package main

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Player is one roster entry. Counters accumulate for the lifetime of the
// room; the connection binding may be replaced on reconnect, the pseudo never
// changes. The first roster entry is the host.
type Player struct {
	Pseudo         string `json:"pseudo"`
	ID             string `json:"id"` // current connection id
	Avatar         string `json:"avatar,omitempty"`
	DrinksGiven    int    `json:"drinksGiven"`
	DrinksTaken    int    `json:"drinksTaken"`
	TimesTargeted  int    `json:"timesTargeted"`
	TimesCorrect   int    `json:"timesCorrect"`
	TimesWrong     int    `json:"timesWrong"`
	TimesDenounced int    `json:"timesDenounced"`

	client *Client
}

// Media is one submitted item pending in (or drawn from) the queue.
type Media struct {
	URI        string `json:"uri"`
	Type       string `json:"type"` // "image" or "video"
	Difficulty int    `json:"difficulty,omitempty"`
	Author     string `json:"author"` // pseudo of the submitter
}

type Vote struct {
	From   string
	Target string
}

type Denunciation struct {
	From   string
	Target string
}

// envelope pairs an inbound message with the connection it arrived on.
type envelope struct {
	msg  ClientMessage
	from *Client
}

// Room owns all state for one session. Every mutation happens on the run
// goroutine; the outside world only talks to it through post, dropConnection
// and shutdown.
type Room struct {
	code string

	players       []*Player
	mediaQueue    []Media
	currentMedia  *Media
	votes         []Vote
	denunciations []Denunciation
	roundNumber   int

	roundTimer    *time.Timer
	roundDuration time.Duration

	inbox      chan envelope
	departures chan string
	quit       chan struct{}
	quitOnce   sync.Once

	lastActive atomic.Int64

	// pick returns a uniform index in [0, n); swapped out in tests.
	pick func(n int) int

	registry *Registry
}

func newRoom(code string, roundDuration time.Duration, registry *Registry) *Room {
	r := &Room{
		code:          code,
		roundDuration: roundDuration,
		inbox:         make(chan envelope, 256),
		departures:    make(chan string, 64),
		quit:          make(chan struct{}),
		pick:          rand.Intn,
		registry:      registry,
	}
	r.touch()

	return r
}

// post queues an inbound message for the room goroutine. Delivery is best
// effort: a full inbox or a stopped room drops the message.
func (r *Room) post(env envelope) {
	select {
	case r.inbox <- env:
	default:
	}
}

// dropConnection asks the room to reap any player bound to this connection.
func (r *Room) dropConnection(connectionID string) {
	select {
	case r.departures <- connectionID:
	default:
	}
}

// shutdown ends the room goroutine and disconnects its remaining clients.
func (r *Room) shutdown() {
	r.quitOnce.Do(func() {
		close(r.quit)
	})
}

func (r *Room) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

func (r *Room) idleSince() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// run is the room's event loop. The round timer channel is selected on here
// and nowhere else, so cancel-then-arm inside the loop can never observe a
// stale expiry.
func (r *Room) run() {
	defer r.cancelRoundTimer()

	for {
		var timerC <-chan time.Time
		if r.roundTimer != nil {
			timerC = r.roundTimer.C
		}

		select {
		case env := <-r.inbox:
			r.touch()
			r.dispatch(env)

		case connectionID := <-r.departures:
			r.touch()
			if empty := r.handleDeparture(connectionID); empty {
				r.registry.remove(r.code)

				return
			}

		case <-timerC:
			r.touch()
			r.roundTimer = nil
			r.handleRoundTimeout()

		case <-r.quit:
			for _, p := range r.players {
				if p.client != nil {
					p.client.close()
				}
			}

			return
		}
	}
}

func (r *Room) dispatch(env envelope) {
	switch env.msg.Type {
	case msgJoinRoom:
		r.handleJoin(env)
	case msgSubmitPosts:
		r.handleSubmitPosts(env)
	case msgAddMedia:
		r.handleAddMedia(env)
	case msgStartGame:
		if !r.startRound() {
			env.from.deliver(errorMessage(ErrCannotStart))
		}
	case msgGetCurrentRound:
		r.handleGetCurrentRound(env)
	case msgDenounce:
		r.handleDenounce(env)
	case msgGetPlayers:
		env.from.deliver(PlayersListMessage{Type: "players_list", Players: r.players})
	case msgVote:
		r.handleVote(env)
	case msgRevealVotes:
		r.handleRevealVotes()
	case msgRequestReveal:
		r.handleRequestReveal(env)
	case msgGetEndStats:
		env.from.deliver(EndStatsMessage{Type: "end_stats", Players: r.players})
	case msgGoToEnd:
		r.broadcast(signalMessage("end_game"))
		log.Info().Str("room", r.code).Msg("end of game triggered")
	case msgNextRound:
		if !r.startRound() {
			env.from.deliver(errorMessage(ErrEmptyQueue))
		}
	}
}

func (r *Room) broadcast(msg any) {
	for _, p := range r.players {
		if p.client != nil {
			p.client.deliver(msg)
		}
	}
}

func (r *Room) findPlayer(pseudo string) *Player {
	for _, p := range r.players {
		if p.Pseudo == pseudo {
			return p
		}
	}

	return nil
}

// handleJoin binds the connection to a roster entry. A pseudo already bound
// to a different live connection is a conflict; the same pseudo rejoining
// rebinds, anything else appends a fresh record with zeroed counters.
func (r *Room) handleJoin(env envelope) {
	existing := r.findPlayer(env.msg.Pseudo)

	switch {
	case existing != nil && existing.ID != env.from.id:
		env.from.deliver(errorMessage(ErrIdentityConflict))

		return
	case existing != nil:
		existing.client = env.from
		existing.ID = env.from.id
	default:
		r.players = append(r.players, &Player{
			Pseudo: env.msg.Pseudo,
			ID:     env.from.id,
			Avatar: env.msg.Avatar,
			client: env.from,
		})
	}

	log.Info().Str("room", r.code).Str("pseudo", env.msg.Pseudo).Msg("player joined")

	r.broadcast(RoomUpdateMessage{Type: "room_update", Players: r.players})
}

func (r *Room) handleSubmitPosts(env envelope) {
	if env.msg.Posts == nil {
		return
	}

	for _, m := range env.msg.Posts {
		r.mediaQueue = append(r.mediaQueue, normalizeMedia(m))
	}

	log.Debug().Str("room", r.code).Int("count", len(env.msg.Posts)).Msg("posts submitted")
}

func (r *Room) handleAddMedia(env envelope) {
	if env.msg.Media == nil {
		return
	}

	r.mediaQueue = append(r.mediaQueue, normalizeMedia(*env.msg.Media))

	log.Debug().Str("room", r.code).Msg("media added")
}

// normalizeMedia pins difficulty into its 1-3 range, defaulting to 1.
func normalizeMedia(m Media) Media {
	if m.Difficulty < 1 {
		m.Difficulty = 1
	}
	if m.Difficulty > 3 {
		m.Difficulty = 3
	}

	return m
}

// startRound draws one media item without replacement, resets the vote set,
// and arms the round timer. Denunciations deliberately survive the round
// boundary. Returns false when the queue is empty.
func (r *Room) startRound() bool {
	if len(r.mediaQueue) == 0 {
		return false
	}

	i := r.pick(len(r.mediaQueue))
	drawn := r.mediaQueue[i]
	r.mediaQueue = append(r.mediaQueue[:i], r.mediaQueue[i+1:]...)

	r.currentMedia = &drawn
	r.votes = nil
	r.roundNumber++

	r.broadcast(signalMessage("game_started"))
	r.broadcast(r.currentRoundMessage())

	r.armRoundTimer()

	log.Info().Str("room", r.code).Int("round", r.roundNumber).Msg("round started")

	return true
}

func (r *Room) currentRoundMessage() CurrentRoundMessage {
	return CurrentRoundMessage{
		Type:        "current_round",
		Media:       *r.currentMedia,
		Players:     r.players,
		RoundNumber: r.roundNumber,
	}
}

// armRoundTimer cancels any pending timer before arming the next one, so at
// most one expiry can ever be pending for this room.
func (r *Room) armRoundTimer() {
	r.cancelRoundTimer()
	r.roundTimer = time.NewTimer(r.roundDuration)
}

func (r *Room) cancelRoundTimer() {
	if r.roundTimer == nil {
		return
	}

	if !r.roundTimer.Stop() {
		select {
		case <-r.roundTimer.C:
		default:
		}
	}

	r.roundTimer = nil
}

func (r *Room) handleRoundTimeout() {
	r.broadcast(signalMessage("round_ended"))
	r.broadcast(signalMessage("vote_phase"))

	log.Info().Str("room", r.code).Int("round", r.roundNumber).Msg("round timed out, entering vote phase")
}

// handleGetCurrentRound replays the round state to a single reconnecting
// client. Silent no-op outside of a round.
func (r *Room) handleGetCurrentRound(env envelope) {
	if r.currentMedia == nil {
		return
	}

	env.from.deliver(r.currentRoundMessage())
}

// handleDenounce logs the accusation and pokes the accused. Never cleared,
// never scored.
func (r *Room) handleDenounce(env envelope) {
	r.denunciations = append(r.denunciations, Denunciation{From: env.msg.From, Target: env.msg.Target})

	target := r.findPlayer(env.msg.Target)
	if target == nil {
		return
	}

	target.TimesDenounced++
	if target.client != nil {
		target.client.deliver(DenouncedMessage{Type: "denounced", From: env.msg.From})
	}

	log.Debug().Str("room", r.code).Str("from", env.msg.From).Str("target", env.msg.Target).Msg("denounced")
}

// handleVote records the voter's first (and only) vote of the round and
// applies the drink bookkeeping. Repeat votes are silently ignored.
func (r *Room) handleVote(env envelope) {
	if r.currentMedia == nil {
		return
	}

	for _, v := range r.votes {
		if v.From == env.msg.From {
			return
		}
	}

	r.votes = append(r.votes, Vote{From: env.msg.From, Target: env.msg.Target})

	correct := env.msg.Target == r.currentMedia.Author

	if voter := r.findPlayer(env.msg.From); voter != nil {
		if correct {
			voter.TimesCorrect++
			voter.DrinksGiven += r.currentMedia.Difficulty
		} else {
			voter.TimesWrong++
			voter.DrinksTaken += r.currentMedia.Difficulty
		}
	}

	if target := r.findPlayer(env.msg.Target); target != nil {
		target.TimesTargeted++
	}

	env.from.deliver(VoteConfirmedMessage{Type: "vote_confirmed", Target: env.msg.Target})

	log.Debug().Str("room", r.code).Str("from", env.msg.From).Str("target", env.msg.Target).Bool("correct", correct).Msg("vote recorded")
}

// revealMessage scores the current vote set against the drawn media's author.
// Shared by reveal_votes (broadcast, then clear) and request_reveal (unicast,
// read-only).
func (r *Room) revealMessage() VotesRevealedMessage {
	difficulty := r.currentMedia.Difficulty

	results := make([]VoteResult, 0, len(r.votes))
	for _, v := range r.votes {
		correct := v.Target == r.currentMedia.Author

		var action string
		if correct {
			action = fmt.Sprintf("distributes %d drink(s)", difficulty)
		} else {
			action = fmt.Sprintf("drinks %d drink(s)", difficulty)
		}

		results = append(results, VoteResult{
			Name:    v.From,
			Choice:  v.Target,
			Correct: correct,
			Action:  action,
		})
	}

	return VotesRevealedMessage{
		Type:         "votes_revealed",
		Author:       r.findPlayer(r.currentMedia.Author),
		Difficulty:   difficulty,
		Results:      results,
		Players:      r.players,
		HasMoreMedia: len(r.mediaQueue) > 0,
	}
}

func (r *Room) handleRevealVotes() {
	if r.currentMedia == nil {
		return
	}

	r.broadcast(r.revealMessage())

	// Cleared only after broadcasting, so a stale vote set cannot leak into
	// the next round.
	r.votes = nil

	log.Info().Str("room", r.code).Str("author", r.currentMedia.Author).Msg("votes revealed")
}

func (r *Room) handleRequestReveal(env envelope) {
	if r.currentMedia == nil {
		return
	}

	env.from.deliver(r.revealMessage())
}

// handleDeparture removes the player bound to a lost connection and reports
// whether the room is now empty. Roster order is preserved, so host migrates
// to the next-oldest member.
func (r *Room) handleDeparture(connectionID string) (empty bool) {
	idx := -1
	for i, p := range r.players {
		if p.ID == connectionID {
			idx = i

			break
		}
	}

	if idx == -1 {
		return false
	}

	leaver := r.players[idx]
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	log.Info().Str("room", r.code).Str("pseudo", leaver.Pseudo).Msg("player disconnected")

	r.broadcast(RoomUpdateMessage{Type: "room_update", Players: r.players})

	return len(r.players) == 0
}
