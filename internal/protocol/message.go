// Package protocol implements the Wavelength wire protocol: a flat
// key=value message codec and a length-prefixed frame transport.
package protocol

import (
	"fmt"
	"strings"
)

// Kind identifies a message type on the wire.
type Kind int

// Wire message kinds. Numeric values are fixed by the protocol.
const (
	KindCreate Kind = 200 // CRE8: create a game
	KindJoin   Kind = 201 // JOIN: join an existing game
	KindList   Kind = 202 // GLST: list open lobbies
	KindStart  Kind = 203 // STRT: start the game / round announcement
	KindCard   Kind = 204 // CARD: draw a card
	KindClue   Kind = 205 // CLUE: submit a clue
	KindGuess  Kind = 206 // GUESS: submit a guess
	KindScore  Kind = 208 // SCRB: scoreboard
	KindEnd    Kind = 210 // ENDG: end of game
	KindChat   Kind = 211 // CHAT: chat relay
)

var kindNames = map[Kind]string{
	KindCreate: "CRE8",
	KindJoin:   "JOIN",
	KindList:   "GLST",
	KindStart:  "STRT",
	KindCard:   "CARD",
	KindClue:   "CLUE",
	KindGuess:  "GUESS",
	KindScore:  "SCRB",
	KindEnd:    "ENDG",
	KindChat:   "CHAT",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the symbolic wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a symbolic tag name to its Kind. A dotted prefix
// (e.g. "WAVEREQ.CRE8") is tolerated; only the last component counts.
//
// Postcondition: Returns (kind, true) for a recognized name, or (0, false).
func ParseKind(name string) (Kind, bool) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	k, ok := kindsByName[name]
	return k, ok
}

// Field separators of the textual encoding.
const (
	fieldSep = "&"
	kvSep    = "="
	typeKey  = "type"
)

// DecodeError reports a payload that could not be decoded as a Message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decoding message: " + e.Reason
}

// Message is a single application message: a kind tag plus a flat set of
// string-valued fields. Field insertion order is preserved so that
// marshalling is deterministic.
type Message struct {
	kind   Kind
	keys   []string
	values map[string]string
}

// NewMessage creates an empty message of the given kind.
func NewMessage(kind Kind) *Message {
	return &Message{
		kind:   kind,
		values: make(map[string]string),
	}
}

// Kind returns the message's type tag.
func (m *Message) Kind() Kind {
	return m.kind
}

// Set stores a field value, preserving first-insertion order. Setting an
// existing key overwrites its value in place.
func (m *Message) Set(key, value string) *Message {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value for key.
//
// Postcondition: Returns (value, true) if the field is present, or ("", false).
func (m *Message) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value for key, or the empty string when absent.
func (m *Message) Value(key string) string {
	return m.values[key]
}

// Len returns the number of fields, not counting the type tag.
func (m *Message) Len() int {
	return len(m.keys)
}

// Keys returns the field names in insertion order.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Marshal renders the message in its canonical textual form: the type tag
// first, then each field as key=value, all joined by '&'.
//
// Postcondition: Returns a non-empty string beginning with "type=".
func (m *Message) Marshal() string {
	var b strings.Builder
	b.WriteString(typeKey)
	b.WriteString(kvSep)
	b.WriteString(m.kind.String())
	for _, k := range m.keys {
		b.WriteString(fieldSep)
		b.WriteString(k)
		b.WriteString(kvSep)
		b.WriteString(m.values[k])
	}
	return b.String()
}

// String implements fmt.Stringer via Marshal.
func (m *Message) String() string {
	return m.Marshal()
}

// Unmarshal decodes the canonical textual form back into a Message.
// Fields are split on '&'; each field splits on its first '=' so values may
// contain '=' but not '&'.
//
// Postcondition: Returns a decoded message, or a *DecodeError when a field
// is not key=value shaped, the type field is absent, or the tag name is not
// recognized. On error the returned message is reset to the default kind
// with no fields.
func Unmarshal(data string) (*Message, error) {
	m := NewMessage(KindCreate)
	if data == "" {
		return m, &DecodeError{Reason: "empty payload"}
	}

	sawType := false
	for _, part := range strings.Split(data, fieldSep) {
		key, value, found := strings.Cut(part, kvSep)
		if !found {
			return NewMessage(KindCreate), &DecodeError{Reason: fmt.Sprintf("malformed field %q", part)}
		}
		if key == typeKey {
			kind, ok := ParseKind(value)
			if !ok {
				return NewMessage(KindCreate), &DecodeError{Reason: fmt.Sprintf("unknown message kind %q", value)}
			}
			m.kind = kind
			sawType = true
			continue
		}
		m.Set(key, value)
	}

	if !sawType {
		return NewMessage(KindCreate), &DecodeError{Reason: "missing type field"}
	}
	return m, nil
}
