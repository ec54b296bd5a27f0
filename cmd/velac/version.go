package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/pkg/bytecode"
)

// Version information. These can be overridden at build time via -ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildDate = ""
)

type versionPayload struct {
	Tool          string `json:"tool"`
	Version       string `json:"version"`
	FormatVersion uint16 `json:"format_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildDate     string `json:"build_date,omitempty"`
	GoVersion     string `json:"go_version,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var (
		format string
		full   bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show velac build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := collectVersionInfo(full)
			switch strings.ToLower(format) {
			case "pretty":
				renderVersionPretty(cmd.OutOrStdout(), payload, full)
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "output format (pretty|json)")
	cmd.Flags().BoolVar(&full, "full", false, "include commit, build date and Go version")
	return cmd
}

func collectVersionInfo(full bool) versionPayload {
	p := versionPayload{
		Tool:          "velac",
		Version:       Version,
		FormatVersion: bytecode.FormatVersion,
	}
	if !full {
		return p
	}
	p.GitCommit = valueOrUnknown(GitCommit)
	p.BuildDate = valueOrUnknown(BuildDate)
	if info, ok := debug.ReadBuildInfo(); ok {
		p.GoVersion = info.GoVersion
	}
	return p
}

func renderVersionPretty(out io.Writer, p versionPayload, full bool) {
	fmt.Fprintf(out, "velac %s (bytecode format %d)\n", okColor.Sprint(p.Version), p.FormatVersion)
	if full {
		fmt.Fprintf(out, "commit: %s\n", p.GitCommit)
		fmt.Fprintf(out, "built:  %s\n", p.BuildDate)
		fmt.Fprintf(out, "go:     %s\n", p.GoVersion)
	}
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
