package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMillis(t *testing.T) {
	t.Run("marshals as decimal string", func(t *testing.T) {
		b, err := json.Marshal(Millis(1700000000123))
		require.NoError(t, err)
		assert.Equal(t, `"1700000000123"`, string(b))
	})

	t.Run("unmarshals string or number", func(t *testing.T) {
		var a, b Millis
		require.NoError(t, json.Unmarshal([]byte(`"42"`), &a))
		require.NoError(t, json.Unmarshal([]byte(`42`), &b))
		assert.Equal(t, Millis(42), a)
		assert.Equal(t, a, b)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var m Millis
		assert.Error(t, json.Unmarshal([]byte(`"soon"`), &m))
	})
}

func TestPayload(t *testing.T) {
	t.Run("round trips raw json", func(t *testing.T) {
		var msg struct {
			Envelope Payload `json:"envelope"`
		}
		in := `{"envelope":{"ciphertext":"abc","n":[1,2,3]}}`
		require.NoError(t, json.Unmarshal([]byte(in), &msg))
		assert.Equal(t, `{"ciphertext":"abc","n":[1,2,3]}`, string(msg.Envelope))

		out, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out))
	})

	t.Run("invalid stored text is emitted as string", func(t *testing.T) {
		var p Payload
		require.NoError(t, p.Scan("not json"))
		out, err := json.Marshal(p)
		require.NoError(t, err)
		assert.Equal(t, `"not json"`, string(out))
	})

	t.Run("OrDefault replaces empty and null", func(t *testing.T) {
		assert.Equal(t, "{}", string(Payload(nil).OrDefault("{}")))
		assert.Equal(t, "[]", string(Payload("null").OrDefault("[]")))
		assert.Equal(t, `[1]`, string(Payload(`[1]`).OrDefault("[]")))
	})
}

func TestStringList(t *testing.T) {
	t.Run("parses json array", func(t *testing.T) {
		assert.Equal(t, StringList{"A", "B", "7"}, ParseStringList(`["A","B",7]`))
	})

	t.Run("parses comma list", func(t *testing.T) {
		assert.Equal(t, StringList{"A", "B"}, ParseStringList(" A, ,B "))
	})

	t.Run("empty is empty", func(t *testing.T) {
		assert.Empty(t, ParseStringList(""))
	})

	t.Run("value is json array", func(t *testing.T) {
		v, err := StringList{"A", "B"}.Value()
		require.NoError(t, err)
		assert.Equal(t, `["A","B"]`, v)

		var l StringList
		require.NoError(t, l.Scan([]byte(v.(string))))
		assert.True(t, l.Contains("B"))
		assert.False(t, l.Contains("C"))
	})
}

func TestSessionIsExpired(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	tests := []struct {
		name      string
		expiresAt string
		expired   bool
	}{
		{"empty never expires", "", false},
		{"garbage never expires", "tomorrow", false},
		{"zero never expires", "0", false},
		{"past", "999999", true},
		{"equal is not expired", "1000000", false},
		{"future", "1000001", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tc.expiresAt}
			assert.Equal(t, tc.expired, s.IsExpired(now))
		})
	}
}

func TestSessionStatusAcceptsRounds(t *testing.T) {
	assert.True(t, SessionStatusCreated.AcceptsRounds())
	assert.True(t, SessionStatusReady.AcceptsRounds())
	assert.False(t, SessionStatusRounds.AcceptsRounds())
	assert.False(t, SessionStatusExpired.AcceptsRounds())
}
