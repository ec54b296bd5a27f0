package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Serve compile, run and resolve over Connect and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			r, err := p.resolver()
			if err != nil {
				return err
			}
			cache, err := p.openCache(cmd)
			if err != nil {
				return err
			}

			var opts []server.ServerOption
			if cache != nil {
				defer cache.Close()
				opts = append(opts, server.WithCache(cache))
			}
			if d, _ := cmd.Flags().GetDuration("run-timeout"); d > 0 {
				opts = append(opts, server.WithRunTimeout(d))
			}

			srv := server.New(r, opts...)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				log.Notice("shutting down")
				srv.Stop()
			}()

			addr, _ := cmd.Flags().GetString("addr")
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().String("addr", "localhost:7420", "listen address")
	cmd.Flags().Duration("run-timeout", server.DefaultRunTimeout, "limit for each Run call")
	cmd.Flags().Bool("no-cache", false, "bypass the build cache")
	cmd.Flags().String("cache", "", "build cache database (overrides [build] cache)")
	return cmd
}
