package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ravenfs-mcp",
		Usage: "serve ravenfs gateway operations as MCP tools over stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "ravenfs-mcp.yaml",
				Usage:   "gateway list; written with defaults when missing",
				EnvVars: []string{"RAVENFS_MCP_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := LoadConfig(c.String("config"))
			if err != nil {
				return err
			}

			s := server.NewMCPServer(
				"ravenfs",
				"1.0.0",
				server.WithToolCapabilities(false),
			)
			addTools(s, NewGatewayRegistry(cfg))
			return server.ServeStdio(s)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
