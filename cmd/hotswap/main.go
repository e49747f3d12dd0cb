package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "hotswap"
	app.Usage = "run a Logic Unit and reload it whenever its artifact is rebuilt"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML configuration file",
			EnvVars: []string{"HOTSWAP_CONFIG"},
		},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-file", Usage: "write logs to this file"},
	}
	app.Commands = []*cli.Command{
		runCommand(),
		inspectCommand(),
		demoCommand(),
	}
	return app
}
