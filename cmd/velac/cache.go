package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/buildcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the build cache",
	}
	cmd.PersistentFlags().String("cache", "", "build cache database (overrides [build] cache)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the number of cached programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *buildcache.Cache) error {
				n, err := c.Len(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d programs\n", c.Path(), n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *buildcache.Cache) error {
				n, err := c.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d programs from %s\n", warnColor.Sprint("purged"), n, c.Path())
				return nil
			})
		},
	})
	return cmd
}

// withCache opens the configured cache for the duration of fn.
func withCache(cmd *cobra.Command, fn func(c *buildcache.Cache) error) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	c, err := p.openCache(cmd)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("no build cache configured (set [build] cache or pass --cache)")
	}
	defer c.Close()
	return fn(c)
}
