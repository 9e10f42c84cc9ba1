package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsAcceptsScalars(t *testing.T) {
	var cmd KVCommand
	err := json.Unmarshal([]byte(`{"command":"ZADD","args":["scores",10.5,"alice",true,null]}`), &cmd)
	require.NoError(t, err)
	assert.Equal(t, Args{"scores", "10.5", "alice", "true", ""}, cmd.Args)
	assert.Equal(t, "scores", cmd.ResultKey())
}

func TestArgsRejectsObjects(t *testing.T) {
	var cmd KVCommand
	err := json.Unmarshal([]byte(`{"command":"SET","args":[{"a":1}]}`), &cmd)
	assert.Error(t, err)
}

func TestResultKeyFallsBackToVerb(t *testing.T) {
	assert.Equal(t, "PING", KVCommand{Command: "PING"}.ResultKey())
	assert.Equal(t, "todos", SQLCommand{Name: "todos"}.ResultKey())
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("sqlite")
	require.NoError(t, err)
	assert.Equal(t, Relational, v)

	v, err = ParseVariant("redis")
	require.NoError(t, err)
	assert.Equal(t, KeyValue, v)

	_, err = ParseVariant("mongo")
	assert.Error(t, err)
}

func TestIsErrorResult(t *testing.T) {
	assert.True(t, IsErrorResult(map[string]any{"error": "boom"}))
	assert.False(t, IsErrorResult(map[string]any{"error": "boom", "id": 1}))
	assert.False(t, IsErrorResult("Command executed"))
}
