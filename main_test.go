package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "people-service", cmd.Use)

	for _, name := range []string{"config", "addr", "database-url", "max-records", "max-size-bytes"} {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag %s", name)
	}
}

func TestRootCommand_RejectsInvalidFlags(t *testing.T) {
	clearEnv(t)
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--database-url", "memory:", "--max-records=-1"})
	err := cmd.Execute()
	assert.Error(t, err)
}
