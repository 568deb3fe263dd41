package main

// Inbound message names (client → server)
const (
	msgJoinRoom        = "join_room"
	msgSubmitPosts     = "submit_posts"
	msgAddMedia        = "add_media"
	msgStartGame       = "start_game"
	msgGetCurrentRound = "get_current_round"
	msgDenounce        = "denounce"
	msgGetPlayers      = "get_players"
	msgVote            = "vote"
	msgRevealVotes     = "reveal_votes"
	msgRequestReveal   = "request_reveal"
	msgGetEndStats     = "get_end_stats"
	msgGoToEnd         = "go_to_end"
	msgNextRound       = "next_round"
)

// ClientMessage is the single envelope for everything a client sends.
// Which fields are meaningful depends on Type; unused fields stay empty.
type ClientMessage struct {
	Type   string  `json:"type"`             // one of the msg* constants
	Code   string  `json:"code,omitempty"`   // room code, required by every message
	Pseudo string  `json:"pseudo,omitempty"` // join_room
	Avatar string  `json:"avatar,omitempty"` // join_room
	From   string  `json:"from,omitempty"`   // denounce / vote
	Target string  `json:"target,omitempty"` // denounce / vote
	Posts  []Media `json:"posts,omitempty"`  // submit_posts
	Media  *Media  `json:"media,omitempty"`  // add_media
}

// ErrorMessage reports a validation failure to the offending client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// RoomUpdateMessage broadcasts the full roster after a join or departure.
// Order is join order; the first entry is the host.
type RoomUpdateMessage struct {
	Type    string    `json:"type"` // "room_update"
	Players []*Player `json:"players"`
}

// SignalMessage is for events that carry no payload
// ("game_started", "round_ended", "vote_phase", "end_game").
type SignalMessage struct {
	Type string `json:"type"`
}

// CurrentRoundMessage describes the round in progress.
type CurrentRoundMessage struct {
	Type        string    `json:"type"` // "current_round"
	Media       Media     `json:"media"`
	Players     []*Player `json:"players"`
	RoundNumber int       `json:"roundNumber"`
}

// DenouncedMessage is sent to the accused player only.
type DenouncedMessage struct {
	Type string `json:"type"` // "denounced"
	From string `json:"from"`
}

// PlayersListMessage answers a get_players request.
type PlayersListMessage struct {
	Type    string    `json:"type"` // "players_list"
	Players []*Player `json:"players"`
}

// VoteConfirmedMessage acknowledges a counted vote to the voter only.
type VoteConfirmedMessage struct {
	Type   string `json:"type"` // "vote_confirmed"
	Target string `json:"target"`
}

// VoteResult is one scored line of a reveal.
type VoteResult struct {
	Name    string `json:"name"`    // voter pseudo
	Choice  string `json:"choice"`  // pseudo the voter picked
	Correct bool   `json:"correct"` // choice matched the media's author
	Action  string `json:"action"`  // human-readable drink outcome
}

// VotesRevealedMessage is the scored outcome of the current round.
// Author may be null if the submitting player has since left.
type VotesRevealedMessage struct {
	Type         string       `json:"type"` // "votes_revealed"
	Author       *Player      `json:"author"`
	Difficulty   int          `json:"difficulty"`
	Results      []VoteResult `json:"results"`
	Players      []*Player    `json:"players"`
	HasMoreMedia bool         `json:"hasMoreMedia"`
}

// EndStatsMessage answers a get_end_stats request with cumulative counters.
type EndStatsMessage struct {
	Type    string    `json:"type"` // "end_stats"
	Players []*Player `json:"players"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: "error", Message: err.Error()}
}

func signalMessage(name string) SignalMessage {
	return SignalMessage{Type: name}
}
