package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gpuc/internal/target"
	"gpuc/internal/version"
)

type versionPayload struct {
	Tool        string `json:"tool"`
	Version     string `json:"version"`
	Generations []int  `json:"generations"`
	GitCommit   string `json:"git_commit,omitempty"`
	BuildDate   string `json:"build_date,omitempty"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show gpuc build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := versionPayload{
			Tool:        "gpuc",
			Version:     valueOr(version.Version, "dev"),
			Generations: target.Generations(),
			GitCommit:   strings.TrimSpace(version.GitCommit),
			BuildDate:   strings.TrimSpace(version.BuildDate),
		}

		switch strings.ToLower(versionFormat) {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout(), payload)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}

func renderVersionPretty(out io.Writer, p versionPayload) {
	fmt.Fprintf(out, "gpuc %s\n", p.Version)
	gens := make([]string, len(p.Generations))
	for i, g := range p.Generations {
		gens[i] = fmt.Sprintf("a%dxx", g)
	}
	fmt.Fprintf(out, "targets: %s\n", strings.Join(gens, ", "))
	fmt.Fprintf(out, "commit:  %s\n", valueOr(p.GitCommit, "unknown"))
	fmt.Fprintf(out, "built:   %s\n", valueOr(p.BuildDate, "unknown"))
}

func valueOr(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
