package game

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Team identifies one of the two fixed teams. The values double as wire
// field names on the scoreboard.
type Team string

const (
	TeamA Team = "TeamA"
	TeamB Team = "TeamB"
)

// teamOrder fixes the iteration order for winner checks and scoreboards.
var teamOrder = [2]Team{TeamA, TeamB}

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// State is a session lifecycle state. Transitions are monotonic:
// LOBBY -> IN_PROGRESS -> ENDED, with ENDED terminal.
type State string

const (
	StateLobby      State = "LOBBY"
	StateInProgress State = "IN_PROGRESS"
	StateEnded      State = "ENDED"
)

// Session and validation errors surfaced to clients as failure reasons.
var (
	ErrNameTaken     = errors.New("a game with that name already exists")
	ErrGameNotFound  = errors.New("game not found")
	ErrUsernameTaken = errors.New("username already taken in this game")
	ErrNotInLobby    = errors.New("game already started or ended")
	ErrPlayerCount   = errors.New("exactly 4 players required to start the game")
	ErrGameEnded     = errors.New("game has ended")
	ErrNoRound       = errors.New("no round in progress")
	ErrNoCard        = errors.New("no card has been drawn this round")
	ErrNoCards       = errors.New("no cards available")
	ErrNotPsychic    = errors.New("only the psychic can do that")
	ErrNotGuesser    = errors.New("only the guesser can submit a guess")
	ErrGuessRange    = errors.New("guess must be an integer between 1 and 20")
)

// Player is one participant in a session.
type Player struct {
	Username  string
	Team      Team
	IsPsychic bool
}

// RoundStart describes the roles for a newly started round.
type RoundStart struct {
	Round   int
	Team    Team
	Psychic string
	Guesser string
}

// StartSummary is the result of starting a game: the team rosters and the
// first round's roles.
type StartSummary struct {
	TeamA []string
	TeamB []string
	Round RoundStart
}

// ScoreResult records the outcome of one evaluated guess.
type ScoreResult struct {
	Guess        int
	TargetRange  string
	TargetCenter int
	Points       int
	TeamA        int
	TeamB        int
}

// GuessOutcome is the result of a resolved guess: the score, and either a
// winner (game over) or the next round's roles.
type GuessOutcome struct {
	Result ScoreResult
	Winner Team        // empty unless the game just ended
	Next   *RoundStart // nil when the game ended
}

// Session is one game's state machine. All exported methods are safe for
// concurrent use; the whole guess/score/card mutation path runs under one
// mutex acquisition so concurrent requests against the same game serialize.
type Session struct {
	mu sync.Mutex

	id      string
	name    string
	pin     string
	creator string

	state        State
	players      []*Player
	deck         []*Card
	pairs        []Pair
	src          Source
	currentCard  *Card
	clue         string
	scores       map[Team]int
	guesses      map[Team]int
	roundNumber  int
	currentTeam  Team
	psychicIndex int
	winThreshold int
}

// newSession creates a lobby-state session with a freshly dealt deck.
// The 8-character id matches the historical wire format.
func newSession(name, pin, creator string, pairs []Pair, src Source, winThreshold int) *Session {
	return &Session{
		id:           uuid.NewString()[:8],
		name:         name,
		pin:          pin,
		creator:      creator,
		state:        StateLobby,
		pairs:        pairs,
		src:          src,
		deck:         generateDeck(pairs, src),
		scores:       map[Team]int{TeamA: 0, TeamB: 0},
		guesses:      make(map[Team]int),
		psychicIndex: -1,
		currentTeam:  TeamA,
		winThreshold: winThreshold,
	}
}

// ID returns the session's opaque unique identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session's display name.
func (s *Session) Name() string { return s.name }

// Creator returns the username that created the session.
func (s *Session) Creator() string { return s.creator }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Players returns a snapshot of the player list in join order.
func (s *Session) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// Scores returns a snapshot of the team scores.
func (s *Session) Scores() map[Team]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Team]int, len(s.scores))
	for t, v := range s.scores {
		out[t] = v
	}
	return out
}

// RoundNumber returns the current round number (0 before the game starts).
func (s *Session) RoundNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundNumber
}

// Clue returns the clue submitted this round, or "" if none yet.
func (s *Session) Clue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clue
}

// AddPlayer appends a player to the session.
//
// Precondition: username must be non-empty.
// Postcondition: Returns ErrNotInLobby unless the session is still in the
// lobby; the player list is unchanged on error.
func (s *Session) AddPlayer(username string, team Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPlayer(username, team)
}

func (s *Session) addPlayer(username string, team Team) error {
	if s.state != StateLobby {
		return ErrNotInLobby
	}
	s.players = append(s.players, &Player{Username: username, Team: team})
	return nil
}

// Start transitions the session from LOBBY to IN_PROGRESS and sets the
// acting team to TeamA. Callers are expected to verify the player count
// first; Begin does both.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLobby {
		return ErrNotInLobby
	}
	s.state = StateInProgress
	s.currentTeam = TeamA
	return nil
}

// Begin starts the game: it verifies the exactly-4-players precondition
// without transitioning state on failure, moves to IN_PROGRESS, opens round
// one, and assigns the first psychic.
//
// Postcondition: Returns the team rosters and round-one roles, or
// ErrNotInLobby / ErrPlayerCount with state unchanged.
func (s *Session) Begin() (*StartSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLobby {
		return nil, ErrNotInLobby
	}
	if len(s.players) != 4 {
		return nil, ErrPlayerCount
	}

	s.state = StateInProgress
	s.currentTeam = TeamA
	s.roundNumber = 1

	psychic, ok := s.assignPsychic()
	if !ok {
		return nil, ErrNoRound
	}

	summary := &StartSummary{
		Round: RoundStart{
			Round:   s.roundNumber,
			Team:    s.currentTeam,
			Psychic: psychic,
			Guesser: s.guesser(),
		},
	}
	for _, p := range s.players {
		switch p.Team {
		case TeamA:
			summary.TeamA = append(summary.TeamA, p.Username)
		case TeamB:
			summary.TeamB = append(summary.TeamB, p.Username)
		}
	}
	return summary, nil
}

// AssignPsychic clears all psychic flags and selects the acting team's
// player at position round mod team-size, a deterministic round-robin.
//
// Postcondition: Returns the psychic's username, or false when the acting
// team has no players. Exactly one player holds the flag afterwards.
func (s *Session) AssignPsychic() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignPsychic()
}

func (s *Session) assignPsychic() (string, bool) {
	for _, p := range s.players {
		p.IsPsychic = false
	}
	var eligible []int
	for i, p := range s.players {
		if p.Team == s.currentTeam {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		s.psychicIndex = -1
		return "", false
	}
	s.psychicIndex = eligible[s.roundNumber%len(eligible)]
	s.players[s.psychicIndex].IsPsychic = true
	return s.players[s.psychicIndex].Username, true
}

// guesser returns the acting team's non-psychic player, or "" when roles
// are not assigned.
func (s *Session) guesser() string {
	if s.psychicIndex < 0 || s.psychicIndex >= len(s.players) {
		return ""
	}
	team := s.players[s.psychicIndex].Team
	for _, p := range s.players {
		if p.Team == team && !p.IsPsychic {
			return p.Username
		}
	}
	return ""
}

// DrawCard pops the next card from the deck, regenerating a shuffled deck
// when it runs out, and makes it the current card.
//
// Postcondition: Returns the drawn card, or ErrNoCards when no pairs are
// available to deal from at all.
func (s *Session) DrawCard() (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawCard()
}

func (s *Session) drawCard() (*Card, error) {
	if len(s.deck) == 0 {
		s.deck = generateDeck(s.pairs, s.src)
	}
	if len(s.deck) == 0 {
		return nil, ErrNoCards
	}
	card := s.deck[0]
	s.deck = s.deck[1:]
	s.currentCard = card
	return card, nil
}

// Draw is the role-checked draw used by the dispatcher: only the current
// psychic may draw.
func (s *Session) Draw(username string) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return nil, ErrGameEnded
	}
	if !s.isPsychic(username) {
		return nil, ErrNotPsychic
	}
	return s.drawCard()
}

// SubmitClue stores the clue for the current round. Any non-empty text is
// accepted.
func (s *Session) SubmitClue(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clue = text
}

// SubmitClueAs is the role-checked clue submission used by the dispatcher:
// only the current psychic may give a clue.
func (s *Session) SubmitClueAs(username, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return ErrGameEnded
	}
	if !s.isPsychic(username) {
		return ErrNotPsychic
	}
	s.clue = text
	return nil
}

// isPsychic reports whether username is the player currently holding the
// psychic flag.
func (s *Session) isPsychic(username string) bool {
	for _, p := range s.players {
		if p.Username == username {
			return p.IsPsychic
		}
	}
	return false
}

// SubmitGuess stores a guess for the given team, overwriting any earlier
// guess this round.
//
// Postcondition: Returns ErrGuessRange unless 1 <= value <= 20.
func (s *Session) SubmitGuess(team Team, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitGuess(team, value)
}

func (s *Session) submitGuess(team Team, value int) error {
	if value < ScaleMin || value > ScaleMax {
		return ErrGuessRange
	}
	s.guesses[team] = value
	return nil
}

// EvaluateGuess scores the psychic team's stored guess against the current
// card and adds the points to that team's score.
//
// Postcondition: Returns nil when no psychic is assigned, no guess is
// stored, or no card is drawn; otherwise returns the score record.
func (s *Session) EvaluateGuess() *ScoreResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateGuess()
}

func (s *Session) evaluateGuess() *ScoreResult {
	if s.psychicIndex < 0 || s.psychicIndex >= len(s.players) {
		return nil
	}
	team := s.players[s.psychicIndex].Team
	guess, ok := s.guesses[team]
	if !ok || s.currentCard == nil {
		return nil
	}

	points := scoreGuess(guess, s.currentCard)
	s.scores[team] += points

	return &ScoreResult{
		Guess:        guess,
		TargetRange:  s.currentCard.Range(),
		TargetCenter: s.currentCard.Center(),
		Points:       points,
		TeamA:        s.scores[TeamA],
		TeamB:        s.scores[TeamB],
	}
}

// scoreGuess applies the arc scoring rules: 4 for the exact center, 3 for
// anywhere in the arc, 2 and 1 for distance-1 and distance-2 misses from
// the center, 0 otherwise. An arc with start > end wraps past 20 back to 1.
func scoreGuess(guess int, card *Card) int {
	start, end, center := card.TargetStart, card.TargetEnd, card.Center()

	var inArc bool
	if start <= end {
		inArc = start <= guess && guess <= end
	} else {
		inArc = guess >= start || guess <= end
	}

	dist := guess - center
	if dist < 0 {
		dist = -dist
	}

	switch {
	case guess == center:
		return 4
	case inArc:
		return 3
	case dist%20 == 1:
		return 2
	case dist%20 == 2:
		return 1
	default:
		return 0
	}
}

// NextRound advances the round: the round number increments, the clue,
// card, and guesses clear, the acting team flips, and all psychic flags
// clear. The deck is not reshuffled.
func (s *Session) NextRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRound()
}

func (s *Session) nextRound() {
	s.roundNumber++
	s.clue = ""
	s.currentCard = nil
	s.guesses = make(map[Team]int)
	s.currentTeam = s.currentTeam.Other()
	for _, p := range s.players {
		p.IsPsychic = false
	}
}

// CheckWinner returns the first team, in TeamA-then-TeamB order, whose
// score has reached threshold.
//
// Postcondition: Returns (team, true) if a team has won, or ("", false).
func (s *Session) CheckWinner(threshold int) (Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkWinner(threshold)
}

func (s *Session) checkWinner(threshold int) (Team, bool) {
	for _, t := range teamOrder {
		if s.scores[t] >= threshold {
			return t, true
		}
	}
	return "", false
}

// Guess resolves a guess end to end under one lock acquisition: role and
// range checks, scoring, win detection, and round advancement. On a win the
// session transitions to ENDED and accepts no further rounds.
//
// Postcondition: Returns the outcome, or one of ErrGameEnded, ErrNoRound,
// ErrNotGuesser, ErrGuessRange, ErrNoCard with state unchanged.
func (s *Session) Guess(username string, value int) (*GuessOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return nil, ErrGameEnded
	}
	if s.psychicIndex < 0 || s.psychicIndex >= len(s.players) {
		return nil, ErrNoRound
	}
	if username != s.guesser() {
		return nil, ErrNotGuesser
	}
	if s.currentCard == nil {
		return nil, ErrNoCard
	}

	team := s.players[s.psychicIndex].Team
	if err := s.submitGuess(team, value); err != nil {
		return nil, err
	}

	result := s.evaluateGuess()
	if result == nil {
		return nil, ErrNoCard
	}

	outcome := &GuessOutcome{Result: *result}
	if winner, won := s.checkWinner(s.winThreshold); won {
		s.state = StateEnded
		outcome.Winner = winner
		return outcome, nil
	}

	s.nextRound()
	psychic, ok := s.assignPsychic()
	if !ok {
		return nil, ErrNoRound
	}
	outcome.Next = &RoundStart{
		Round:   s.roundNumber,
		Team:    s.currentTeam,
		Psychic: psychic,
		Guesser: s.guesser(),
	}
	return outcome, nil
}

// End marks the session ENDED. The transition is one way; ending an
// already-ended session is a no-op.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateEnded
}

// Winner returns the winning team at the configured threshold, if any.
func (s *Session) Winner() (Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkWinner(s.winThreshold)
}
