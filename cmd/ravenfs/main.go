package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "ravenfs",
		Usage: "replicated chunk storage: run a gateway or storage node, or talk to a gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; environment variables override it",
				EnvVars: []string{"RAVENFS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "gateway",
				Aliases: []string{"g"},
				Value:   "localhost:5000",
				Usage:   "gateway address for client commands",
				EnvVars: []string{"RAVENFS_GATEWAY"},
			},
		},
		Commands: []*cli.Command{
			gatewayCmd,
			nodeCmd,
			metadataCmd,
			uploadCmd,
			downloadCmd,
			rmCmd,
			lsCmd,
			healthCmd,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ravenfs:", err)
		os.Exit(1)
	}
}
