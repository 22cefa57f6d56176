package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"process", "regenerate", "import", "activities", "sessions", "tags", "taxonomy", "serve", "monitor"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "activity-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestProcessCommand_Flags(t *testing.T) {
	for _, name := range []string{"from", "to", "regenerate", "reason", "json"} {
		require.NotNil(t, processCmd.Flags().Lookup(name), "process should have --%s", name)
	}
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "format", "source", "sheet"} {
		require.NotNil(t, importCmd.Flags().Lookup(name), "import should have --%s", name)
	}
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("2024-03-04", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", r.From())
	assert.Equal(t, "2024-03-04", r.To())

	r, err = parseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", r.To())

	_, err = parseRange("", "2024-03-04")
	assert.Error(t, err)

	_, err = parseRange("2024-03-05", "2024-03-04")
	assert.Error(t, err, "end before start")
}

func TestParseGenerationType(t *testing.T) {
	got, err := parseGenerationType("system_wide")
	require.NoError(t, err)
	assert.Equal(t, "system_wide", string(got))

	_, err = parseGenerationType("incremental")
	assert.Error(t, err, "incremental records are written by process only")
}
