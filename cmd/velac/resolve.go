package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/server"
	"github.com/chazu/velac/vm"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [flags] name...",
		Short: "Print the artifact path a module name resolves to",
		Long: `Resolve qualified module names such as module:auth, library:utils or
system:core against the project's search paths. Unprefixed names are
resolved relative to the working directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: resolveExecution,
	}
	cmd.Flags().Bool("load", false, "also load each module and list its exports")
	cmd.Flags().String("remote", "", "ask a velac server at this URL instead")
	return cmd
}

func resolveExecution(cmd *cobra.Command, args []string) error {
	load, _ := cmd.Flags().GetBool("load")
	remote, _ := cmd.Flags().GetString("remote")
	if remote != "" {
		return resolveRemote(cmd, remote, args, load)
	}

	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	r, err := p.resolver()
	if err != nil {
		return err
	}
	loader := vm.NewLoader(r)

	out := cmd.OutOrStdout()
	failed := 0
	for _, name := range args {
		path, err := r.Resolve(name)
		if err != nil {
			printDiagnostics(cmd.ErrOrStderr(), name, err)
			failed++
			continue
		}
		if !load {
			fmt.Fprintf(out, "%s\t%s\n", name, path)
			continue
		}
		mod, err := loader.Load(name)
		if err != nil {
			printDiagnostics(cmd.ErrOrStderr(), name, err)
			failed++
			continue
		}
		exports := make([]string, 0, len(mod.Exports))
		for sym := range mod.Exports {
			exports = append(exports, sym)
		}
		sort.Strings(exports)
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", name, path, mod.Format, strings.Join(exports, ","))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d names did not resolve", failed, len(args))
	}
	return nil
}

func resolveRemote(cmd *cobra.Command, url string, names []string, load bool) error {
	c := server.NewClient(http.DefaultClient, url)
	out := cmd.OutOrStdout()
	for _, name := range names {
		resp, err := c.Resolve(cmd.Context(), &server.ResolveRequest{Name: name, Load: load})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if load {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", name, resp.Path, resp.Format, strings.Join(resp.Exports, ","))
		} else {
			fmt.Fprintf(out, "%s\t%s\n", name, resp.Path)
		}
	}
	return nil
}
