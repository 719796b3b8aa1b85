package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMarshal_TypeOnly(t *testing.T) {
	m := NewMessage(KindList)
	assert.Equal(t, "type=GLST", m.Marshal())
}

func TestMarshal_FieldOrder(t *testing.T) {
	m := NewMessage(KindCreate).
		Set("game_name", "friday").
		Set("pin", "1234").
		Set("username", "alice")
	assert.Equal(t, "type=CRE8&game_name=friday&pin=1234&username=alice", m.Marshal())
}

func TestMarshal_OverwriteKeepsPosition(t *testing.T) {
	m := NewMessage(KindChat).
		Set("from", "alice").
		Set("text", "hi").
		Set("from", "bob")
	assert.Equal(t, "type=CHAT&from=bob&text=hi", m.Marshal())
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	m := NewMessage(KindJoin).
		Set("game_name", "friday").
		Set("pin", "1234").
		Set("username", "bob")

	decoded, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, KindJoin, decoded.Kind())
	assert.Equal(t, m.Keys(), decoded.Keys())
	for _, k := range m.Keys() {
		assert.Equal(t, m.Value(k), decoded.Value(k))
	}
}

func TestUnmarshal_ValueContainsSeparator(t *testing.T) {
	// Values may contain '=': only the first '=' splits key from value.
	decoded, err := Unmarshal("type=CLUE&clue=e=mc^2&game_id=abc")
	require.NoError(t, err)
	assert.Equal(t, "e=mc^2", decoded.Value("clue"))
	assert.Equal(t, "abc", decoded.Value("game_id"))
}

func TestUnmarshal_DottedTypePrefix(t *testing.T) {
	decoded, err := Unmarshal("type=WAVEREQ.GUESS&value=7")
	require.NoError(t, err)
	assert.Equal(t, KindGuess, decoded.Kind())
	assert.Equal(t, "7", decoded.Value("value"))
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty payload", ""},
		{"field without separator", "type=CHAT&garbage"},
		{"missing type field", "from=alice&text=hi"},
		{"unknown kind name", "type=NOPE&from=alice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Unmarshal(tc.input)
			require.Error(t, err)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
			// Failed decodes reset to the default kind with no fields.
			require.NotNil(t, m)
			assert.Equal(t, KindCreate, m.Kind())
			assert.Zero(t, m.Len())
		})
	}
}

func TestGet_AbsentKey(t *testing.T) {
	m := NewMessage(KindScore)
	v, ok := m.Get("TeamA")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Empty(t, m.Value("TeamA"))
}

func TestParseKind_AllNames(t *testing.T) {
	for kind, name := range kindNames {
		parsed, ok := ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, parsed)
	}
	_, ok := ParseKind("BOGUS")
	assert.False(t, ok)
}

// Property: any message whose keys and values avoid the field separator and
// whose values avoid a leading-'=' ambiguity survives a marshal/unmarshal
// round trip unchanged.
func TestPropertyMessage_RoundTrip(t *testing.T) {
	kinds := []Kind{
		KindCreate, KindJoin, KindList, KindStart, KindCard,
		KindClue, KindGuess, KindScore, KindEnd, KindChat,
	}
	keyGen := rapid.StringMatching(`[a-z_][a-z0-9_]{0,11}`)
	valGen := rapid.StringMatching(`[ -%'-<>-~]{0,24}`) // printable ASCII minus '&' and '='

	rapid.Check(t, func(t *rapid.T) {
		kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(t, "kind")]
		m := NewMessage(kind)

		n := rapid.IntRange(0, 8).Draw(t, "fields")
		for i := 0; i < n; i++ {
			key := keyGen.Draw(t, fmt.Sprintf("key%d", i))
			if key == "type" {
				continue
			}
			m.Set(key, valGen.Draw(t, fmt.Sprintf("val%d", i)))
		}

		decoded, err := Unmarshal(m.Marshal())
		if err != nil {
			t.Fatalf("round trip failed: %v", err)
		}
		assert.Equal(t, m.Kind(), decoded.Kind())
		assert.Equal(t, m.Keys(), decoded.Keys())
		for _, k := range m.Keys() {
			assert.Equal(t, m.Value(k), decoded.Value(k))
		}
	})
}
