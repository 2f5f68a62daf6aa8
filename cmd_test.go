package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRiddleCommandFallsBackOffline(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("RIDDLE_TIMEOUT", "1s")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"riddle", "--phase", "3"})
	require.NoError(t, rootCmd.Execute())

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 3, got["phase"])
	assert.Equal(t, "constellation", got["answer"])
	assert.NotEmpty(t, got["riddle"])
}

func TestRiddleCommandRejectsBadPhase(t *testing.T) {
	rootCmd.SetArgs([]string{"riddle", "--phase", "9"})
	assert.Error(t, rootCmd.Execute())
	riddlePhase = 1
}
