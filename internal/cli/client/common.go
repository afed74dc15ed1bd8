package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
)

// session is an opened runtime plus the telemetry flush for one command run.
type session struct {
	*cli.Runtime
	flush func()
}

func (s *session) Close() {
	s.Runtime.Close()
	s.flush()
}

// openSession loads the config, applies any command-line overrides and opens
// the runtime.
func openSession(ctx context.Context, opts cli.RuntimeOptions, overrides ...func(*config.Config)) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(overrides) > 0 {
		for _, o := range overrides {
			o(cfg)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	flush := cli.InitTelemetry(cfg)
	rt, err := cli.OpenRuntime(ctx, cfg, opts)
	if err != nil {
		flush()
		return nil, err
	}
	return &session{Runtime: rt, flush: flush}, nil
}

func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
