package game

import (
	"math/rand"
	"sync"
)

// randSource adapts the package-level math/rand generator, which is safe
// for concurrent use across sessions.
type randSource struct{}

func (randSource) Intn(n int) int { return rand.Intn(n) }

// NewRandSource returns a concurrency-safe Source backed by math/rand.
func NewRandSource() Source { return randSource{} }

// Registry is the concurrency-guarded catalog of active sessions, keyed by
// session id. One mutex covers every operation so concurrent creates and
// joins cannot race the name-uniqueness and team-balance checks.
type Registry struct {
	mu           sync.Mutex
	games        map[string]*Session
	pairs        []Pair
	src          Source
	winThreshold int
}

// NewRegistry creates an empty registry. New sessions deal decks from
// pairs using src and end when a team reaches winThreshold points.
//
// Precondition: pairs should be non-empty for playable games; src and
// winThreshold fall back to NewRandSource and 10 when zero.
func NewRegistry(pairs []Pair, src Source, winThreshold int) *Registry {
	if src == nil {
		src = NewRandSource()
	}
	if winThreshold <= 0 {
		winThreshold = 10
	}
	return &Registry{
		games:        make(map[string]*Session),
		pairs:        pairs,
		src:          src,
		winThreshold: winThreshold,
	}
}

// Create allocates a new session with the creator as its first player on
// TeamA and a freshly shuffled deck.
//
// Postcondition: Returns the stored session, or ErrNameTaken when an active
// session already uses the display name.
func (r *Registry) Create(name, pin, username string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.games {
		if g.name == name {
			return nil, ErrNameTaken
		}
	}

	sess := newSession(name, pin, username, r.pairs, r.src, r.winThreshold)
	if err := sess.addPlayer(username, TeamA); err != nil {
		return nil, err
	}
	r.games[sess.id] = sess
	return sess, nil
}

// Join adds a player to the session matching name and pin, balancing teams
// by placing the newcomer on the smaller side. Equal counts favor TeamB.
//
// Postcondition: Returns the joined session, or ErrGameNotFound when no
// session matches, ErrUsernameTaken when the name is in use there, or
// ErrNotInLobby when the game already started.
func (r *Registry) Join(name, pin, username string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.games {
		if g.name != name || g.pin != pin {
			continue
		}

		g.mu.Lock()
		countA, countB := 0, 0
		taken := false
		for _, p := range g.players {
			if p.Username == username {
				taken = true
			}
			switch p.Team {
			case TeamA:
				countA++
			case TeamB:
				countB++
			}
		}
		if taken {
			g.mu.Unlock()
			return nil, ErrUsernameTaken
		}
		team := TeamA
		if countB <= countA {
			team = TeamB
		}
		err := g.addPlayer(username, team)
		g.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, ErrGameNotFound
}

// Get looks up a session by id.
//
// Postcondition: Returns (session, true) if found, or (nil, false).
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	return g, ok
}

// ListLobbies returns the display names of all sessions still accepting
// players, in arbitrary order.
func (r *Registry) ListLobbies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, g := range r.games {
		if g.State() == StateLobby {
			names = append(names, g.name)
		}
	}
	return names
}

// End marks the identified session ENDED.
//
// Postcondition: Returns whether a session with that id existed. Sessions
// are never removed from the catalog.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[id]
	if !ok {
		return false
	}
	g.End()
	return true
}
