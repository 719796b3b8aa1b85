package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fourPlayerSession builds a lobby session with two players on each team,
// the creator first, using a deterministic deck.
func fourPlayerSession(t *testing.T) *Session {
	t.Helper()
	s := newSession("friday", "1234", "alice", DefaultPairs(), fixedSrc{0}, 10)
	require.NoError(t, s.AddPlayer("alice", TeamA))
	require.NoError(t, s.AddPlayer("bob", TeamB))
	require.NoError(t, s.AddPlayer("carol", TeamA))
	require.NoError(t, s.AddPlayer("dave", TeamB))
	return s
}

func TestScoreGuess(t *testing.T) {
	arc := &Card{TargetStart: 5, TargetEnd: 9} // center 7
	wrapped := &Card{TargetStart: 18, TargetEnd: 3}

	tests := []struct {
		name   string
		card   *Card
		guess  int
		points int
	}{
		{"exact center", arc, 7, 4},
		{"in arc below center", arc, 6, 3},
		{"in arc at edge", arc, 5, 3},
		{"in arc upper edge", arc, 9, 3},
		{"distance 3 outside arc", arc, 10, 0},
		{"distance 4 outside arc", arc, 11, 0},
		{"far miss", arc, 20, 0},
		// Wrapped arc: 18..20 and 1..3 are in the arc, literal center is 10.
		{"wrap low side in arc", wrapped, 1, 3},
		{"wrap high side in arc", wrapped, 19, 3},
		{"wrap literal center", wrapped, 10, 4},
		{"wrap distance 1 from center", wrapped, 11, 2},
		{"wrap distance 2 from center", wrapped, 12, 1},
		{"wrap distance 2 below center", wrapped, 8, 1},
		{"wrap distance 3", wrapped, 13, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.points, scoreGuess(tc.guess, tc.card))
		})
	}
}

// Property: every score is one of {0,1,2,3,4}, and the exact center always
// scores 4.
func TestPropertyScoreGuess_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		card := &Card{
			TargetStart: rapid.IntRange(ScaleMin, ScaleMax).Draw(t, "start"),
			TargetEnd:   rapid.IntRange(ScaleMin, ScaleMax).Draw(t, "end"),
		}
		guess := rapid.IntRange(ScaleMin, ScaleMax).Draw(t, "guess")

		points := scoreGuess(guess, card)
		assert.GreaterOrEqual(t, points, 0)
		assert.LessOrEqual(t, points, 4)
		if guess == card.Center() {
			assert.Equal(t, 4, points)
		}
	})
}

func TestSession_AddPlayerAfterStart(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	err = s.AddPlayer("eve", TeamA)
	assert.ErrorIs(t, err, ErrNotInLobby)
	assert.Len(t, s.Players(), 4)
}

func TestSession_BeginRequiresFourPlayers(t *testing.T) {
	s := newSession("friday", "1234", "alice", DefaultPairs(), fixedSrc{0}, 10)
	require.NoError(t, s.AddPlayer("alice", TeamA))
	require.NoError(t, s.AddPlayer("bob", TeamB))
	require.NoError(t, s.AddPlayer("carol", TeamA))

	_, err := s.Begin()
	assert.ErrorIs(t, err, ErrPlayerCount)
	// Failed start must leave the session joinable.
	assert.Equal(t, StateLobby, s.State())
	assert.NoError(t, s.AddPlayer("dave", TeamB))
}

func TestSession_BeginTwice(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrNotInLobby)
	assert.Len(t, s.Players(), 4)
	assert.Equal(t, map[Team]int{TeamA: 0, TeamB: 0}, s.Scores())
}

func TestSession_StartTransition(t *testing.T) {
	s := fourPlayerSession(t)
	require.NoError(t, s.Start())
	assert.Equal(t, StateInProgress, s.State())

	assert.ErrorIs(t, s.Start(), ErrNotInLobby)
}

func TestSession_BeginAssignsRoles(t *testing.T) {
	s := fourPlayerSession(t)
	summary, err := s.Begin()
	require.NoError(t, err)

	assert.Equal(t, StateInProgress, s.State())
	assert.Equal(t, []string{"alice", "carol"}, summary.TeamA)
	assert.Equal(t, []string{"bob", "dave"}, summary.TeamB)
	assert.Equal(t, 1, summary.Round.Round)
	assert.Equal(t, TeamA, summary.Round.Team)
	// Round 1 over two eligible TeamA players picks the second one.
	assert.Equal(t, "carol", summary.Round.Psychic)
	assert.Equal(t, "alice", summary.Round.Guesser)

	psychics := 0
	for _, p := range s.Players() {
		if p.IsPsychic {
			psychics++
			assert.Equal(t, "carol", p.Username)
		}
	}
	assert.Equal(t, 1, psychics)
}

func TestSession_AssignPsychicRotates(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	// Round 1: TeamA, second eligible player.
	name, ok := s.AssignPsychic()
	require.True(t, ok)
	assert.Equal(t, "carol", name)

	// Round 2: TeamB's turn, 2 mod 2 = first eligible player.
	s.NextRound()
	name, ok = s.AssignPsychic()
	require.True(t, ok)
	assert.Equal(t, "bob", name)

	// Round 3: back to TeamA, 3 mod 2 = second player again.
	s.NextRound()
	name, ok = s.AssignPsychic()
	require.True(t, ok)
	assert.Equal(t, "carol", name)
}

func TestSession_DrawRoleCheck(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Draw("alice")
	assert.ErrorIs(t, err, ErrNotPsychic)

	card, err := s.Draw("carol")
	require.NoError(t, err)
	assert.Equal(t, 1, card.TargetStart)
	assert.Equal(t, 16, card.TargetEnd)
}

func TestSession_DrawReplenishesDeck(t *testing.T) {
	pairs := []Pair{{"Hot", "Cold"}}
	s := newSession("friday", "1234", "alice", pairs, fixedSrc{0}, 10)
	require.NoError(t, s.AddPlayer("alice", TeamA))

	first, err := s.DrawCard()
	require.NoError(t, err)
	require.NotNil(t, first)

	// The deck is empty now; drawing again regenerates it.
	second, err := s.DrawCard()
	require.NoError(t, err)
	assert.Equal(t, first.Topic, second.Topic)
}

func TestSession_DrawNoPairs(t *testing.T) {
	s := newSession("friday", "1234", "alice", nil, fixedSrc{0}, 10)
	_, err := s.DrawCard()
	assert.ErrorIs(t, err, ErrNoCards)
}

func TestSession_ClueRoleCheck(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	err = s.SubmitClueAs("bob", "lukewarm coffee")
	assert.ErrorIs(t, err, ErrNotPsychic)
	assert.Empty(t, s.Clue())

	require.NoError(t, s.SubmitClueAs("carol", "lukewarm coffee"))
	assert.Equal(t, "lukewarm coffee", s.Clue())
}

func TestSession_NextRoundResets(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Draw("carol")
	require.NoError(t, err)
	s.SubmitClue("room temperature")
	require.NoError(t, s.SubmitGuess(TeamA, 8))

	s.NextRound()
	assert.Equal(t, 2, s.RoundNumber())
	assert.Empty(t, s.Clue())
	for _, p := range s.Players() {
		assert.False(t, p.IsPsychic, p.Username)
	}

	// The turn passed to TeamB: round 2 over bob and dave picks bob.
	psychic, ok := s.AssignPsychic()
	require.True(t, ok)
	assert.Equal(t, "bob", psychic)
}

func TestSession_SubmitGuessRange(t *testing.T) {
	s := fourPlayerSession(t)
	assert.ErrorIs(t, s.SubmitGuess(TeamA, 0), ErrGuessRange)
	assert.ErrorIs(t, s.SubmitGuess(TeamA, 21), ErrGuessRange)
	assert.NoError(t, s.SubmitGuess(TeamA, 1))
	assert.NoError(t, s.SubmitGuess(TeamA, 20))
}

func TestSession_EvaluateGuessNotReady(t *testing.T) {
	s := fourPlayerSession(t)
	// No round, no card, no guess.
	assert.Nil(t, s.EvaluateGuess())

	_, err := s.Begin()
	require.NoError(t, err)
	// Psychic assigned but no card drawn.
	require.NoError(t, s.SubmitGuess(TeamA, 5))
	assert.Nil(t, s.EvaluateGuess())
}

func TestSession_GuessFullRound(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	card, err := s.Draw("carol")
	require.NoError(t, err) // arc 1-16, center 8
	require.NoError(t, s.SubmitClueAs("carol", "room temperature"))

	// Only the psychic's teammate may guess.
	_, err = s.Guess("bob", 8)
	assert.ErrorIs(t, err, ErrNotGuesser)
	_, err = s.Guess("carol", 8)
	assert.ErrorIs(t, err, ErrNotGuesser)

	outcome, err := s.Guess("alice", card.Center())
	require.NoError(t, err)
	assert.Equal(t, 4, outcome.Result.Points)
	assert.Equal(t, 4, outcome.Result.TeamA)
	assert.Equal(t, 0, outcome.Result.TeamB)
	assert.Equal(t, "1 - 16", outcome.Result.TargetRange)
	assert.Empty(t, outcome.Winner)

	// The round advanced: acting team flipped, state cleared.
	require.NotNil(t, outcome.Next)
	assert.Equal(t, 2, outcome.Next.Round)
	assert.Equal(t, TeamB, outcome.Next.Team)
	assert.Equal(t, "bob", outcome.Next.Psychic)
	assert.Equal(t, "dave", outcome.Next.Guesser)
	assert.Empty(t, s.Clue())
}

func TestSession_GuessOutOfRange(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)
	_, err = s.Draw("carol")
	require.NoError(t, err)

	before := s.Scores()
	_, err = s.Guess("alice", 42)
	assert.ErrorIs(t, err, ErrGuessRange)
	assert.Equal(t, before, s.Scores())
	assert.Equal(t, 1, s.RoundNumber())
}

func TestSession_GuessBeforeCard(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Guess("alice", 10)
	assert.ErrorIs(t, err, ErrNoCard)
	assert.Equal(t, 1, s.RoundNumber())
}

func TestSession_WinEndsGame(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)

	// Exact guesses score 4 each round; teams alternate, so after four
	// rounds both sit at 8 and the fifth crosses the threshold of 10.
	for i := 0; i < 4; i++ {
		psychic, guesser := sessionRoles(t, s)
		card, err := s.Draw(psychic)
		require.NoError(t, err)
		outcome, err := s.Guess(guesser, card.Center())
		require.NoError(t, err)
		require.Empty(t, outcome.Winner)
	}

	psychic, guesser := sessionRoles(t, s)
	card, err := s.Draw(psychic)
	require.NoError(t, err)
	outcome, err := s.Guess(guesser, card.Center())
	require.NoError(t, err)

	assert.Equal(t, TeamA, outcome.Winner)
	assert.Nil(t, outcome.Next)
	assert.Equal(t, StateEnded, s.State())

	// ENDED is terminal: no further rounds or joins.
	_, err = s.Guess(guesser, 5)
	assert.ErrorIs(t, err, ErrGameEnded)
	assert.ErrorIs(t, s.AddPlayer("eve", TeamA), ErrNotInLobby)

	winner, won := s.Winner()
	require.True(t, won)
	assert.Equal(t, TeamA, winner)
}

// sessionRoles returns the current psychic and guesser usernames.
func sessionRoles(t *testing.T, s *Session) (string, string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.GreaterOrEqual(t, s.psychicIndex, 0)
	return s.players[s.psychicIndex].Username, s.guesser()
}

func TestSession_CheckWinnerPrefersTeamA(t *testing.T) {
	s := fourPlayerSession(t)
	s.mu.Lock()
	s.scores[TeamA] = 10
	s.scores[TeamB] = 12
	s.mu.Unlock()

	winner, won := s.CheckWinner(10)
	require.True(t, won)
	assert.Equal(t, TeamA, winner)
}

func TestSession_CheckWinnerNone(t *testing.T) {
	s := fourPlayerSession(t)
	_, won := s.CheckWinner(10)
	assert.False(t, won)
}

func TestSession_ConcurrentGuessesSerialize(t *testing.T) {
	s := fourPlayerSession(t)
	_, err := s.Begin()
	require.NoError(t, err)
	_, err = s.Draw("carol")
	require.NoError(t, err)

	// Two racing guesses from the guesser: exactly one lands on the open
	// round, the other sees the advanced round and is rejected.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Guess("alice", 8)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var accepted, rejected int
	for err := range results {
		if err == nil {
			accepted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, s.RoundNumber())
}
