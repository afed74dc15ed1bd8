// Package cli provides shared CLI utilities for homebase and homebased.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema describes a command, its flags and its subcommands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema describes cmd and everything below it. Inherited flags such
// as --output are listed once, on the command that declares them.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Aliases:     cmd.Aliases,
		Description: cmd.Short,
		Long:        cmd.Long,
		Flags:       flagSchemas(cmd.LocalNonPersistentFlags()),
		GlobalFlags: flagSchemas(cmd.PersistentFlags()),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}
	return schema
}

func flagSchemas(fs *pflag.FlagSet) []FlagSchema {
	var flags []FlagSchema
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" || f.Hidden {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		flags = append(flags, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    required,
		})
	})
	return flags
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// CheckHelpJSON prints the schema of the addressed command and exits when
// --help-json is present. Call it before Execute so argument validation
// does not reject the invocation first.
func CheckHelpJSON(rootCmd *cobra.Command) {
	target, ok := helpJSONTarget(rootCmd, os.Args[1:])
	if !ok {
		return
	}
	if err := WriteSchema(os.Stdout, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// helpJSONTarget finds the command named by the words before --help-json.
// Flags are skipped and "--" ends flag parsing.
func helpJSONTarget(root *cobra.Command, args []string) (*cobra.Command, bool) {
	var words []string
	for _, arg := range args {
		if arg == "--" {
			return nil, false
		}
		if arg == "--"+helpJSONFlag {
			return findCommand(root, words), true
		}
		if !strings.HasPrefix(arg, "-") {
			words = append(words, arg)
		}
	}
	return nil, false
}

func findCommand(cmd *cobra.Command, words []string) *cobra.Command {
	if len(words) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == words[0] || sub.HasAlias(words[0]) {
			return findCommand(sub, words[1:])
		}
	}
	return cmd
}
