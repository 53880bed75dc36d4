package decode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authParams struct {
	User string `json:"user"`
	Sign string `json:"sign"`
}

type pageParams struct {
	Limit int `json:"limit"`
}

func TestRawDecodesObject(t *testing.T) {
	p, err := Raw[authParams](json.RawMessage(`{"user":"alice","sign":"abc","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.User)
	assert.Equal(t, "abc", p.Sign)
}

func TestRawStrictTypes(t *testing.T) {
	_, err := Raw[authParams](json.RawMessage(`{"user":42,"sign":"abc"}`))
	require.Error(t, err)

	_, err = Raw[authParams](json.RawMessage(`{"user":"alice","sign":["x"]}`))
	require.Error(t, err)
}

func TestRawWeakTypes(t *testing.T) {
	p, err := Raw[pageParams](json.RawMessage(`{"limit":"10"}`), Options{WeaklyTypedInput: true})
	require.NoError(t, err)
	assert.Equal(t, 10, p.Limit)
}

func TestRawFloatToInt(t *testing.T) {
	p, err := Raw[pageParams](json.RawMessage(`{"limit":25}`))
	require.NoError(t, err)
	assert.Equal(t, 25, p.Limit)
}

func TestRawEmptyAndNull(t *testing.T) {
	p, err := Raw[authParams](nil)
	require.NoError(t, err)
	assert.Empty(t, p.User)

	p, err = Raw[authParams](json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, p.Sign)
}

func TestRawRejectsNonObject(t *testing.T) {
	_, err := Raw[authParams](json.RawMessage(`["alice","sig"]`))
	require.Error(t, err)

	_, err = Raw[authParams](json.RawMessage(`"alice"`))
	require.Error(t, err)
}

func TestErrorUnused(t *testing.T) {
	_, err := Raw[authParams](json.RawMessage(`{"user":"a","sign":"b","x":1}`), Options{ErrorUnused: true})
	require.Error(t, err)
}
