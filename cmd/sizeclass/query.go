package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dnr/sizeclass/common/shift"
	"github.com/dnr/sizeclass/layout"
	"github.com/dnr/sizeclass/table"
)

// answer resolves one query: a byte size, or a "packing<<shift" grid target.
func answer(tabs *table.Tables, q string) (string, error) {
	q = strings.TrimSpace(q)
	if p, s, ok := strings.Cut(q, "<<"); ok {
		packing, err := strconv.ParseUint(strings.TrimSpace(p), 0, 32)
		if err != nil {
			return "", fmt.Errorf("bad packing %q", p)
		}
		sh, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
		if err != nil {
			return "", fmt.Errorf("bad shift %q", s)
		}
		id, err := tabs.ClassifyTarget(layout.Target{Packing: uint32(packing), Shift: shift.Shift(sh)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s -> %d: %s", q, id, tabs.Blocks[id].Describe()), nil
	}

	size, err := strconv.ParseUint(q, 0, 64)
	if err != nil {
		return "", fmt.Errorf("bad size %q", q)
	}
	id, err := tabs.Classify(size)
	if err != nil {
		return "", err
	}
	t := layout.TargetOf(size)
	if gid, err := tabs.ClassifyTarget(t); err == nil {
		return fmt.Sprintf("%d -> %d: %s (grid %d<<%d -> %d)", size, id, tabs.Blocks[id].Describe(), t.Packing, t.Shift, gid), nil
	}
	return fmt.Sprintf("%d -> %d: %s", size, id, tabs.Blocks[id].Describe()), nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
)

// promptConfig is the readline setup for a terminal session writing answers to out.
func promptConfig(out io.Writer) *readline.Config {
	return &readline.Config{
		Prompt:          "size> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".sizeclass_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
		Stdout:          out,
	}
}

func runInteractive(tabs *table.Tables, cfg *readline.Config) error {
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return err
	}
	defer rl.Close()
	out := rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		switch line = strings.TrimSpace(line); line {
		case "":
			continue
		case ".exit":
			return nil
		case ".help":
			fmt.Fprintln(out, "enter a byte size (1500, 0x600) or a grid target (3<<9)")
			continue
		}
		ans, err := answer(tabs, line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		fmt.Fprintln(out, ans)
	}
}
