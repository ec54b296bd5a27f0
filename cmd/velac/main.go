// Command velac compiles IR modules to bytecode, inspects and runs the
// result, and serves compilation over RPC.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("velac.cli")

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
)

// newRootCmd builds the command tree. Each call returns fresh commands so
// tests can execute them in isolation.
func newRootCmd() *cobra.Command {
	var (
		verbosity int
		colorMode string
	)

	root := &cobra.Command{
		Use:           "velac",
		Short:         "IR to bytecode compiler and reference VM",
		Long:          "velac lowers IR modules to compact bytecode programs, resolves qualified module names and runs programs on the reference VM.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			commonlog.Configure(verbosity, nil)
			switch colorMode {
			case "auto":
			case "on":
				color.NoColor = false
			case "off":
				color.NoColor = true
			default:
				return fmt.Errorf("invalid --color value %q (expected auto|on|off)", colorMode)
			}
			return nil
		},
	}

	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().StringP("dir", "C", ".", "project directory to search for "+manifestName)

	root.AddCommand(
		newBuildCmd(),
		newDisasmCmd(),
		newResolveCmd(),
		newRunCmd(),
		newServeCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errorColor.Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
