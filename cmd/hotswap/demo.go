package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/units/counter"
)

var demoVariants = map[string]func() []byte{
	"a": counter.A,
	"b": counter.B,
	// B with a bumped contract version; the running unit must reject it
	"mismatch": func() []byte {
		return counter.Build(counter.Options{Decrement: true, Label: "Counter (B): ", Version: contract.Version + 1})
	},
	// A plus a timer: every Increment schedules one extra tick
	"ticker": func() []byte {
		return counter.Build(counter.Options{Label: "Counter (tick): ", TickAfter: time.Second, Quit: true})
	},
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:      "demo",
		Usage:     "write a generated counter unit, for trying reloads without a wasm toolchain",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "variant", Aliases: []string{"v"}, Value: "a", Usage: "a, b, mismatch or ticker"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Value: "counter", Usage: "unit name"},
			&cli.BoolFlag{Name: "truncate", Usage: "write only the first half of the artifact"},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				dir = "build"
			}
			path, err := writeDemo(dir, c.String("name"), c.String("variant"), c.Bool("truncate"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
			return nil
		},
	}
}

// writeDemo replaces the artifact atomically, the way build tools do, so
// a running host never observes a partial file unless truncate asks for one.
func writeDemo(dir, name, variant string, truncate bool) (string, error) {
	build, ok := demoVariants[variant]
	if !ok {
		return "", fmt.Errorf("unknown variant %q", variant)
	}
	data := build()
	if truncate {
		data = data[:len(data)/2]
	}

	loc := loader.Locate(dir, name, "")
	if err := loc.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".hotswap-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), loc.Path()); err != nil {
		return "", err
	}
	return filepath.Clean(loc.Path()), nil
}
