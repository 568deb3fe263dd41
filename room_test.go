package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		roundDuration:  30 * time.Second,
		sessionTimeout: time.Hour,
	}
}

// testClient builds a connection-less client whose outbound messages can be
// read back out of its send buffer.
func testClient() *Client {
	return &Client{
		id:   uuid.NewString(),
		send: make(chan any, 64),
		done: make(chan struct{}),
	}
}

func sentMessages(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func drainClient(c *Client) {
	sentMessages(c)
}

func testRoom(t *testing.T) *Room {
	t.Helper()

	return newRoom("AB12CD", 30*time.Second, newRegistry(testConfig()))
}

func join(r *Room, c *Client, pseudo string) {
	r.handleJoin(envelope{
		msg:  ClientMessage{Type: msgJoinRoom, Code: r.code, Pseudo: pseudo},
		from: c,
	})
}

func TestJoinKeepsRosterOrder(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	bob := testClient()

	join(r, alice, "Alice")
	join(r, bob, "Bob")

	want := []*Player{
		{Pseudo: "Alice", ID: alice.id},
		{Pseudo: "Bob", ID: bob.id},
	}

	if diff := cmp.Diff(want, r.players, cmpopts.IgnoreUnexported(Player{})); diff != "" {
		t.Errorf("roster mismatch (-want +got):\n%s", diff)
	}

	// Bob joined last, so he only saw the second roster broadcast.
	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)

	update, ok := msgs[0].(RoomUpdateMessage)
	require.True(t, ok)
	assert.Equal(t, "room_update", update.Type)
	assert.Len(t, update.Players, 2)

	// Alice saw both.
	assert.Len(t, sentMessages(alice), 2)
}

func TestJoinDuplicatePseudoConflicts(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	imposter := testClient()
	join(r, imposter, "Alice")

	msgs := sentMessages(imposter)
	require.Len(t, msgs, 1)
	assert.Equal(t, errorMessage(ErrIdentityConflict), msgs[0])

	// The original Alice was not disturbed.
	assert.Empty(t, sentMessages(alice))
	assert.Len(t, r.players, 1)
	assert.Equal(t, alice.id, r.players[0].ID)
}

func TestJoinSameConnectionIsIdempotent(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	join(r, alice, "Alice")

	require.Len(t, r.players, 1)
	assert.Equal(t, alice.id, r.players[0].ID)

	// Two roster broadcasts, no error.
	msgs := sentMessages(alice)
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		_, ok := msg.(RoomUpdateMessage)
		assert.True(t, ok)
	}
}

func TestStartRoundDrawsWithoutReplacement(t *testing.T) {
	r := testRoom(t)
	r.pick = func(n int) int { return 0 }

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	r.handleSubmitPosts(envelope{msg: ClientMessage{
		Type: msgSubmitPosts,
		Code: r.code,
		Posts: []Media{
			{URI: "posts/one.jpg", Type: "image", Difficulty: 2, Author: "Alice"},
			{URI: "posts/two.mp4", Type: "video", Author: "Bob"},
		},
	}, from: alice})

	require.Len(t, r.mediaQueue, 2)

	require.True(t, r.startRound())
	require.NotNil(t, r.currentMedia)
	assert.Equal(t, "posts/one.jpg", r.currentMedia.URI)
	assert.Equal(t, 1, r.roundNumber)
	assert.Len(t, r.mediaQueue, 1)
	assert.NotNil(t, r.roundTimer)

	msgs := sentMessages(alice)
	require.Len(t, msgs, 2)
	assert.Equal(t, signalMessage("game_started"), msgs[0])

	round, ok := msgs[1].(CurrentRoundMessage)
	require.True(t, ok)
	assert.Equal(t, 1, round.RoundNumber)
	assert.Equal(t, "posts/one.jpg", round.Media.URI)

	// The drawn item never returns to the queue.
	require.True(t, r.startRound())
	assert.Equal(t, "posts/two.mp4", r.currentMedia.URI)
	assert.Empty(t, r.mediaQueue)

	assert.False(t, r.startRound())

	r.cancelRoundTimer()
}

func TestStartGameOnEmptyQueueReportsError(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	r.dispatch(envelope{msg: ClientMessage{Type: msgStartGame, Code: r.code}, from: alice})

	msgs := sentMessages(alice)
	require.Len(t, msgs, 1)
	assert.Equal(t, errorMessage(ErrCannotStart), msgs[0])
}

func TestMediaDifficultyDefaultsToOne(t *testing.T) {
	r := testRoom(t)

	r.handleAddMedia(envelope{msg: ClientMessage{
		Type:  msgAddMedia,
		Code:  r.code,
		Media: &Media{URI: "posts/one.jpg", Type: "image", Author: "Alice"},
	}})

	require.Len(t, r.mediaQueue, 1)
	assert.Equal(t, 1, r.mediaQueue[0].Difficulty)
}

// startScoredRound reproduces the reference setup: Alice and Bob in the room,
// a difficulty-2 item authored by Alice drawn as the current media.
func startScoredRound(t *testing.T, r *Room) (alice, bob *Client) {
	t.Helper()

	alice = testClient()
	bob = testClient()
	join(r, alice, "Alice")
	join(r, bob, "Bob")

	r.pick = func(n int) int { return 0 }
	r.mediaQueue = []Media{
		{URI: "posts/one.jpg", Type: "image", Difficulty: 2, Author: "Alice"},
		{URI: "posts/two.mp4", Type: "video", Difficulty: 1, Author: "Bob"},
	}

	require.True(t, r.startRound())
	r.cancelRoundTimer()

	drainClient(alice)
	drainClient(bob)

	return alice, bob
}

func vote(r *Room, c *Client, from, target string) {
	r.handleVote(envelope{
		msg:  ClientMessage{Type: msgVote, Code: r.code, From: from, Target: target},
		from: c,
	})
}

func TestVoteScoring(t *testing.T) {
	r := testRoom(t)
	alice, bob := startScoredRound(t, r)

	vote(r, bob, "Bob", "Alice")

	bobRecord := r.findPlayer("Bob")
	assert.Equal(t, 1, bobRecord.TimesCorrect)
	assert.Equal(t, 2, bobRecord.DrinksGiven)
	assert.Equal(t, 0, bobRecord.DrinksTaken)

	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)
	assert.Equal(t, VoteConfirmedMessage{Type: "vote_confirmed", Target: "Alice"}, msgs[0])

	vote(r, alice, "Alice", "Bob")

	aliceRecord := r.findPlayer("Alice")
	assert.Equal(t, 1, aliceRecord.TimesWrong)
	assert.Equal(t, 2, aliceRecord.DrinksTaken)
	assert.Equal(t, 0, aliceRecord.DrinksGiven)

	// Targeted counter moves regardless of correctness.
	assert.Equal(t, 1, bobRecord.TimesTargeted)
	assert.Equal(t, 1, aliceRecord.TimesTargeted)
}

func TestVoteIsIdempotentPerVoter(t *testing.T) {
	r := testRoom(t)
	_, bob := startScoredRound(t, r)

	vote(r, bob, "Bob", "Alice")
	drainClient(bob)

	before := *r.findPlayer("Bob")

	vote(r, bob, "Bob", "Bob")

	assert.Len(t, r.votes, 1)
	assert.Equal(t, before, *r.findPlayer("Bob"))

	// No second confirmation either.
	assert.Empty(t, sentMessages(bob))
}

func TestVoteWithoutCurrentMediaIsNoOp(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	vote(r, alice, "Alice", "Bob")

	assert.Empty(t, r.votes)
	assert.Empty(t, sentMessages(alice))
}

func TestRevealScoresAndClearsVotes(t *testing.T) {
	r := testRoom(t)
	alice, bob := startScoredRound(t, r)

	vote(r, bob, "Bob", "Alice")
	vote(r, alice, "Alice", "Bob")
	drainClient(alice)
	drainClient(bob)

	r.handleRevealVotes()

	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)

	reveal, ok := msgs[0].(VotesRevealedMessage)
	require.True(t, ok)

	require.NotNil(t, reveal.Author)
	assert.Equal(t, "Alice", reveal.Author.Pseudo)
	assert.Equal(t, 2, reveal.Difficulty)
	assert.True(t, reveal.HasMoreMedia)

	want := []VoteResult{
		{Name: "Bob", Choice: "Alice", Correct: true, Action: "distributes 2 drink(s)"},
		{Name: "Alice", Choice: "Bob", Correct: false, Action: "drinks 2 drink(s)"},
	}
	assert.Equal(t, want, reveal.Results)

	// Vote set is cleared only after the broadcast went out.
	assert.Empty(t, r.votes)
}

func TestRequestRevealDoesNotMutate(t *testing.T) {
	r := testRoom(t)
	alice, bob := startScoredRound(t, r)

	vote(r, bob, "Bob", "Alice")
	drainClient(alice)
	drainClient(bob)

	r.handleRequestReveal(envelope{msg: ClientMessage{Type: msgRequestReveal, Code: r.code}, from: bob})
	r.handleRequestReveal(envelope{msg: ClientMessage{Type: msgRequestReveal, Code: r.code}, from: bob})

	// Unicast to the requester only, repeatable, votes untouched.
	assert.Len(t, sentMessages(bob), 2)
	assert.Empty(t, sentMessages(alice))
	assert.Len(t, r.votes, 1)
}

func TestRevealReportsQueueExhaustion(t *testing.T) {
	r := testRoom(t)
	_, bob := startScoredRound(t, r)

	require.True(t, r.startRound())
	r.cancelRoundTimer()
	drainClient(bob)

	r.handleRequestReveal(envelope{msg: ClientMessage{Type: msgRequestReveal, Code: r.code}, from: bob})

	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)

	reveal, ok := msgs[0].(VotesRevealedMessage)
	require.True(t, ok)
	assert.False(t, reveal.HasMoreMedia)
}

func TestRevealWithDepartedAuthor(t *testing.T) {
	r := testRoom(t)
	alice, bob := startScoredRound(t, r)

	vote(r, bob, "Bob", "Alice")

	require.False(t, r.handleDeparture(alice.id))
	drainClient(bob)

	r.handleRequestReveal(envelope{msg: ClientMessage{Type: msgRequestReveal, Code: r.code}, from: bob})

	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)

	reveal, ok := msgs[0].(VotesRevealedMessage)
	require.True(t, ok)
	assert.Nil(t, reveal.Author)
	assert.Len(t, reveal.Results, 1)
}

func TestDenounceCountsAndNotifiesTargetOnly(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	bob := testClient()
	join(r, alice, "Alice")
	join(r, bob, "Bob")
	drainClient(alice)
	drainClient(bob)

	r.handleDenounce(envelope{
		msg:  ClientMessage{Type: msgDenounce, Code: r.code, From: "Alice", Target: "Bob"},
		from: alice,
	})

	assert.Equal(t, 1, r.findPlayer("Bob").TimesDenounced)
	assert.Len(t, r.denunciations, 1)

	msgs := sentMessages(bob)
	require.Len(t, msgs, 1)
	assert.Equal(t, DenouncedMessage{Type: "denounced", From: "Alice"}, msgs[0])

	assert.Empty(t, sentMessages(alice))
}

func TestDenounceUnknownTargetIsNoOp(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	r.handleDenounce(envelope{
		msg:  ClientMessage{Type: msgDenounce, Code: r.code, From: "Alice", Target: "Ghost"},
		from: alice,
	})

	// The accusation is still logged, nobody is notified.
	assert.Len(t, r.denunciations, 1)
	assert.Empty(t, sentMessages(alice))
}

func TestDenunciationsSurviveRoundBoundaries(t *testing.T) {
	r := testRoom(t)
	alice, bob := startScoredRound(t, r)

	r.handleDenounce(envelope{
		msg:  ClientMessage{Type: msgDenounce, Code: r.code, From: "Alice", Target: "Bob"},
		from: alice,
	})
	vote(r, bob, "Bob", "Alice")

	require.True(t, r.startRound())
	r.cancelRoundTimer()

	// Votes reset, denunciations accumulate.
	assert.Empty(t, r.votes)
	assert.Len(t, r.denunciations, 1)
}

func TestDepartureKeepsHostOrder(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	bob := testClient()
	carol := testClient()
	join(r, alice, "Alice")
	join(r, bob, "Bob")
	join(r, carol, "Carol")

	require.False(t, r.handleDeparture(alice.id))

	// Bob, the next-oldest member, is now the first roster entry.
	require.Len(t, r.players, 2)
	assert.Equal(t, "Bob", r.players[0].Pseudo)
	assert.Equal(t, "Carol", r.players[1].Pseudo)

	require.False(t, r.handleDeparture(carol.id))
	assert.True(t, r.handleDeparture(bob.id))
}

func TestDepartureOfUnknownConnectionIsNoOp(t *testing.T) {
	r := testRoom(t)

	alice := testClient()
	join(r, alice, "Alice")
	drainClient(alice)

	require.False(t, r.handleDeparture("not-a-connection"))

	assert.Len(t, r.players, 1)
	assert.Empty(t, sentMessages(alice))
}
