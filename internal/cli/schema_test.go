package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "homebase", Short: "Homebase CLI"}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	AddHelpJSONFlag(root)

	ingest := &cobra.Command{Use: "ingest [path ...]", Short: "Ingest documents", Run: func(*cobra.Command, []string) {}}
	ingest.Flags().BoolP("force", "f", false, "Re-ingest unchanged documents")
	ingest.Flags().String("bucket", "", "Source bucket")
	_ = ingest.MarkFlagRequired("bucket")

	docs := &cobra.Command{Use: "documents", Aliases: []string{"docs"}}
	docs.AddCommand(&cobra.Command{Use: "list", Short: "List documents", Run: func(*cobra.Command, []string) {}})
	docs.AddCommand(&cobra.Command{Use: "purge", Hidden: true, Run: func(*cobra.Command, []string) {}})

	root.AddCommand(ingest, docs)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testRoot())

	assert.Equal(t, "homebase", schema.Name)
	require.Len(t, schema.GlobalFlags, 1)
	assert.Equal(t, "output", schema.GlobalFlags[0].Name)
	require.Len(t, schema.Subcommands, 2)

	docs := schema.Subcommands[0]
	assert.Equal(t, "documents", docs.Name)
	assert.Equal(t, []string{"docs"}, docs.Aliases)
	require.Len(t, docs.Subcommands, 1, "hidden commands are left out")
	assert.Equal(t, "list", docs.Subcommands[0].Name)

	ingest := schema.Subcommands[1]
	assert.Empty(t, ingest.GlobalFlags)
	require.Len(t, ingest.Flags, 2)
	assert.Equal(t, FlagSchema{Name: "bucket", Type: "string", Description: "Source bucket", Required: true}, ingest.Flags[0])
	assert.Equal(t, FlagSchema{Name: "force", Shorthand: "f", Type: "bool", Default: "false", Description: "Re-ingest unchanged documents"}, ingest.Flags[1])
}

func TestHelpJSONTarget(t *testing.T) {
	root := testRoot()

	tests := []struct {
		name     string
		args     []string
		expected string
		found    bool
	}{
		{name: "root", args: []string{"--help-json"}, expected: "homebase", found: true},
		{name: "subcommand", args: []string{"ingest", "--help-json"}, expected: "ingest", found: true},
		{name: "flags before command", args: []string{"--output", "ingest", "-f", "--help-json"}, expected: "ingest", found: true},
		{name: "alias", args: []string{"docs", "list", "--help-json"}, expected: "list", found: true},
		{name: "unknown word stops at parent", args: []string{"documents", "nope", "--help-json"}, expected: "documents", found: true},
		{name: "absent", args: []string{"ingest", "docs"}},
		{name: "after terminator", args: []string{"search", "--", "--help-json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := helpJSONTarget(root, tt.args)

			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.expected, cmd.Name())
			}
		})
	}
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteSchema(&buf, testRoot()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "homebase", decoded.Name)
	assert.NotContains(t, buf.String(), "help-json")
}
