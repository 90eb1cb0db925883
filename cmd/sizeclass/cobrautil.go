package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/dnr/sizeclass/table"
)

type runE = func(*cobra.Command, []string) error

// filter declares flags on a command and returns the step that reads them at run time.
type filter = func(*cobra.Command) runE

// cmd assembles c from subcommands, filters and actions. Filter steps and
// actions run in the order given; the first error stops the command.
func cmd(c *cobra.Command, parts ...any) *cobra.Command {
	var steps []runE
	for _, p := range parts {
		switch p := p.(type) {
		case *cobra.Command:
			c.AddCommand(p)
		case filter:
			if step := p(c); step != nil {
				steps = append(steps, step)
			}
		case runE:
			steps = append(steps, p)
		default:
			log.Panicf("command %q: cannot use %T", c.Name(), p)
		}
	}
	if len(steps) == 0 {
		return c
	}
	c.RunE = func(c *cobra.Command, args []string) error {
		for _, step := range steps {
			if err := step(c, args); err != nil {
				return err
			}
		}
		return nil
	}
	return c
}

type ctxKey[T any] struct{}

func store[T any](c *cobra.Command, v T) {
	c.SetContext(context.WithValue(c.Context(), ctxKey[T]{}, v))
}

func get[T any](c *cobra.Command) T {
	return c.Context().Value(ctxKey[T]{}).(T)
}

type (
	verbose     bool
	interactive bool

	outputConfig struct {
		Out     string
		Format  string
		Package string
		Zstd    bool
	}
)

var outputFormats = []string{"go", "json", "bin"}

func withVerbose(c *cobra.Command) runE {
	v := c.Flags().BoolP("verbose", "v", false, "log table sizes per magnitude")
	return func(c *cobra.Command, args []string) error {
		store(c, verbose(*v))
		return nil
	}
}

func withInteractive(c *cobra.Command) runE {
	i := c.Flags().BoolP("interactive", "i", false, "read sizes from an interactive prompt")
	return func(c *cobra.Command, args []string) error {
		store(c, interactive(*i))
		return nil
	}
}

// withTables compiles a spec table, or loads an already emitted artifact with --table.
func withTables(c *cobra.Command) runE {
	src := c.Flags().String("spec", "", "spec table path or url (default: built-in table)")
	artifact := c.Flags().String("table", "", "read tables from a binary or json artifact instead of compiling")
	return func(c *cobra.Command, args []string) error {
		var tabs *table.Tables
		var err error
		if *artifact != "" {
			tabs, err = loadArtifact(c.Context(), *artifact)
		} else {
			tabs, err = compileSpec(c.Context(), *src)
		}
		if err != nil {
			return err
		}
		store(c, tabs)
		return nil
	}
}

func withOutput(c *cobra.Command) runE {
	var cfg outputConfig
	c.Flags().StringVarP(&cfg.Out, "out", "o", "-", "output file")
	c.Flags().StringVar(&cfg.Format, "format", "go", "output format: go, json or bin")
	c.Flags().StringVar(&cfg.Package, "package", "sizeclasses", "package name for go output")
	c.Flags().BoolVar(&cfg.Zstd, "zstd", false, "compress bin output with zstd")
	return func(c *cobra.Command, args []string) error {
		if !slices.Contains(outputFormats, cfg.Format) {
			return fmt.Errorf("unknown format %q, want one of %v", cfg.Format, outputFormats)
		}
		store(c, cfg)
		return nil
	}
}
