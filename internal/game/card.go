// Package game implements the Wavelength session engine: cards and decks,
// the per-game state machine, and the concurrent session registry.
package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scale bounds of the circular guessing dial.
const (
	ScaleMin = 1
	ScaleMax = 20
)

// Source supplies random integers for deck shuffling and target placement.
// math/rand.Rand satisfies it; tests inject deterministic sources.
type Source interface {
	// Intn returns a non-negative integer in [0, n).
	Intn(n int) int
}

// Card is one topic card: a spectrum between two hints with a hidden target
// arc on the 1-20 dial.
type Card struct {
	Topic       string
	LeftHint    string
	RightHint   string
	TargetStart int
	TargetEnd   int
}

// Center returns the integer midpoint of the target arc. For a wrapped arc
// (TargetStart > TargetEnd) this is the plain integer midpoint, not the
// midpoint along the wrapped arc; scoring relies on this literal formula.
func (c *Card) Center() int {
	return (c.TargetStart + c.TargetEnd) / 2
}

// Range renders the target arc as "start - end" for scoreboard messages.
func (c *Card) Range() string {
	return fmt.Sprintf("%d - %d", c.TargetStart, c.TargetEnd)
}

// Pair is a spectrum word pair a card is built from.
type Pair struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// deckFile is the on-disk shape of a deck pack.
type deckFile struct {
	Name  string `yaml:"name"`
	Pairs []Pair `yaml:"pairs"`
}

// LoadPairs reads all .yaml deck files in dir and returns their word pairs.
//
// Precondition: dir must be a readable directory path.
// Postcondition: Returns all parsed pairs or a non-nil error. A directory
// with no deck files yields an empty slice.
func LoadPairs(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading deck directory %s: %w", dir, err)
	}

	var pairs []Pair
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var deck deckFile
		if err := yaml.Unmarshal(data, &deck); err != nil {
			return nil, fmt.Errorf("parsing deck file %s: %w", path, err)
		}
		for _, p := range deck.Pairs {
			if p.Left == "" || p.Right == "" {
				return nil, fmt.Errorf("deck file %s: pair with empty hint", path)
			}
		}
		pairs = append(pairs, deck.Pairs...)
	}
	return pairs, nil
}

// generateDeck builds a shuffled deck of cards from the given pairs. Each
// card's topic is "<left> vs <right>"; the hidden arc starts in [1,15] and
// ends in [16,20].
//
// Precondition: src must be non-nil.
func generateDeck(pairs []Pair, src Source) []*Card {
	shuffled := make([]Pair, len(pairs))
	copy(shuffled, pairs)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	deck := make([]*Card, 0, len(shuffled))
	for _, p := range shuffled {
		deck = append(deck, &Card{
			Topic:       p.Left + " vs " + p.Right,
			LeftHint:    p.Left,
			RightHint:   p.Right,
			TargetStart: 1 + src.Intn(15),
			TargetEnd:   16 + src.Intn(5),
		})
	}
	return deck
}

// DefaultPairs returns the built-in spectrum word pairs used when no deck
// files are configured.
func DefaultPairs() []Pair {
	out := make([]Pair, len(defaultPairs))
	copy(out, defaultPairs)
	return out
}

var defaultPairs = []Pair{
	{"Hot", "Cold"}, {"Safe for Work", "Not Safe for Work"}, {"Genius", "Stupid"},
	{"Overrated", "Underrated"}, {"Moral", "Immoral"}, {"Sweet", "Savory"},
	{"Introvert", "Extrovert"}, {"Realistic", "Fantastical"}, {"Mainstream", "Obscure"},
	{"Casual", "Formal"}, {"Cheap", "Expensive"}, {"Useful", "Useless"},
	{"Healthy", "Unhealthy"}, {"Modern", "Old-fashioned"}, {"Funny", "Serious"},
	{"Popular", "Unpopular"}, {"Love", "Hate"}, {"Hard", "Easy"}, {"Necessary", "Unnecessary"},
	{"Cool", "Uncool"}, {"Brave", "Cowardly"}, {"Messy", "Organized"}, {"Cliché", "Original"},
	{"Common", "Rare"}, {"Quiet", "Loud"}, {"Bright", "Dark"}, {"Good for you", "Bad for you"},
	{"Overprepared", "Underprepared"}, {"Reliable", "Unreliable"}, {"Predictable", "Surprising"},
	{"Big Risk", "No Risk"}, {"Fast", "Slow"}, {"Public", "Private"}, {"Generous", "Greedy"},
	{"Fiction", "Nonfiction"}, {"Simple", "Complicated"}, {"Strong", "Weak"}, {"Free", "Costly"},
	{"Honest", "Deceptive"}, {"Useful Skill", "Useless Skill"}, {"Too Much", "Not Enough"},
	{"Peaceful", "Chaotic"}, {"Fun", "Boring"}, {"Soft", "Hard"}, {"Natural", "Artificial"},
	{"Friendly", "Hostile"}, {"Optimistic", "Pessimistic"}, {"Efficient", "Wasteful"},
	{"Energetic", "Tired"}, {"Dangerous", "Safe"}, {"Spicy", "Bland"}, {"Big", "Small"},
	{"Tall", "Wide"}, {"New", "Ancient"}, {"Lame", "Exciting"}, {"Sweet", "Bitter"},
	{"Shy", "Bold"}, {"Fancy", "Simple"}, {"Plain", "Luxury"}, {"Cozy", "Uncomfortable"},
	{"Weird", "Normal"}, {"Basic", "Complex"}, {"Creative", "Unimaginative"},
	{"Polished", "Rough"}, {"Clean", "Dirty"}, {"Delicate", "Rugged"},
	{"Orderly", "Chaotic"}, {"Open-minded", "Close-minded"}, {"Passive", "Aggressive"},
	{"Playful", "Serious"}, {"Logical", "Emotional"}, {"Literal", "Figurative"},
	{"Tidy", "Messy"}, {"Overt", "Subtle"}, {"Routine", "Spontaneous"}, {"Hyped", "Chill"},
	{"Innovative", "Traditional"}, {"Digital", "Analog"}, {"Organic", "Synthetic"},
	{"Main Character", "Side Character"}, {"Awkward", "Charming"}, {"Extinct", "Thriving"},
	{"Groundbreaking", "Typical"}, {"High Effort", "Low Effort"}, {"Popular", "Underground"},
	{"Smart", "Ignorant"}, {"Seasoned", "Inexperienced"}, {"Overkill", "Underwhelming"},
	{"Wild", "Tame"}, {"Hopeful", "Hopeless"}, {"Impressive", "Forgettable"},
	{"Open", "Closed"}, {"Massive", "Tiny"}, {"Overconfident", "Insecure"},
	{"Overdressed", "Underdressed"}, {"Powerful", "Powerless"}, {"Grounded", "Unrealistic"},
	{"Talkative", "Quiet"}, {"Controversial", "Uncontroversial"},
	{"Nostalgic", "Futuristic"}, {"Altruistic", "Selfish"}, {"Cringe", "Cool"},
	{"Rebellious", "Obedient"}, {"Edgy", "Wholesome"}, {"Dramatic", "Calm"},
	{"Silly", "Serious"}, {"Heavy", "Light"}, {"Warm", "Cool"}, {"Sharp", "Dull"},
	{"Obvious", "Ambiguous"}, {"Edible", "Inedible"}, {"Human-made", "Natural"},
	{"Expected", "Unexpected"}, {"Local", "Global"}, {"Impersonal", "Personal"},
	{"Forgiving", "Grudging"}, {"Rigid", "Flexible"}, {"Noisy", "Quiet"},
	{"Urban", "Rural"}, {"Safe", "Risky"}, {"Imaginative", "Literal"},
	{"Extravagant", "Minimal"}, {"Crowded", "Empty"}, {"Exclusive", "Inclusive"},
	{"Active", "Passive"}, {"Slick", "Clunky"}, {"Dense", "Sparse"},
	{"Expressive", "Reserved"}, {"Familiar", "Unfamiliar"}, {"Approachable", "Intimidating"},
	{"Bright", "Dim"}, {"Physical", "Digital"}, {"Popular", "Niche"},
}
