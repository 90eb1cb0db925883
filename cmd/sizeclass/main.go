package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dnr/sizeclass"
	"github.com/dnr/sizeclass/common"
	"github.com/dnr/sizeclass/spec"
	"github.com/dnr/sizeclass/table"
)

func compileSpec(ctx context.Context, src string) (*table.Tables, error) {
	rows, err := spec.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	res, err := sizeclass.Compile(ctx, rows)
	if err != nil {
		return nil, err
	}
	if src == "" {
		src = "built-in table"
	}
	tabs := table.FromResult(res)
	fp, err := tabs.Fingerprint()
	if err != nil {
		return nil, err
	}
	log.Printf("compiled %d size classes (%d block layouts, %d pages) from %s, fingerprint %016x",
		len(res.Specs), res.Layout.BlockLayouts(), len(res.Layout.Pages), src, fp)
	return tabs, nil
}

func loadArtifact(ctx context.Context, src string) (*table.Tables, error) {
	b, err := common.LoadFromFileOrHttpUrl(ctx, src)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(src, ".json") {
		return table.ReadJSON(bytes.NewReader(b))
	}
	return table.ReadBinary(bytes.NewReader(b))
}

func writeOutput(c *cobra.Command, tabs *table.Tables, cfg outputConfig) (retErr error) {
	var out io.Writer = c.OutOrStdout()
	if cfg.Out != "-" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return err
		}
		defer func() {
			if err := f.Close(); retErr == nil {
				retErr = err
			}
		}()
		out = f
	}
	switch cfg.Format {
	case "json":
		return tabs.WriteJSON(out)
	case "bin":
		return tabs.WriteBinary(out, cfg.Zstd)
	default:
		return tabs.WriteGo(out, cfg.Package)
	}
}

func logMagnitudes(tabs *table.Tables) {
	for m, mag := range tabs.Magnitudes {
		log.Printf("magnitude %2d: min size %d, align %d, %d entries", m, mag.MinSize, mag.AlignMask+1, mag.Len)
	}
	log.Println("classification table:", len(tabs.ClassIDs), "entries")
}

func newRoot() *cobra.Command {
	return cmd(
		&cobra.Command{
			Use:           "sizeclass",
			Short:         "sizeclass - compile size-class tables for a segmented allocator",
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		cmd(
			&cobra.Command{Use: "compile", Short: "compile a spec table and emit the lookup tables"},
			withVerbose,
			withTables,
			withOutput,
			func(c *cobra.Command, args []string) error {
				tabs := get[*table.Tables](c)
				if get[verbose](c) {
					logMagnitudes(tabs)
				}
				return writeOutput(c, tabs, get[outputConfig](c))
			},
		),
		cmd(
			&cobra.Command{Use: "query [size...]", Short: "look up the class of each size"},
			withTables,
			withInteractive,
			func(c *cobra.Command, args []string) error {
				tabs := get[*table.Tables](c)
				if get[interactive](c) {
					return runInteractive(tabs, promptConfig(c.OutOrStdout()))
				}
				for _, arg := range args {
					ans, err := answer(tabs, arg)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.OutOrStdout(), ans)
				}
				return nil
			},
		),
		cmd(
			&cobra.Command{Use: "report", Short: "summarize the compiled tables"},
			withTables,
			func(c *cobra.Command, args []string) error {
				return get[*table.Tables](c).WriteReport(c.OutOrStdout())
			},
		),
	)
}

func main() {
	if err := newRoot().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
