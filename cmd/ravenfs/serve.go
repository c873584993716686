package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/servers/gateway"
	"github.com/AnishMulay/ravenfs/servers/metadata"
	"github.com/AnishMulay/ravenfs/servers/node"
)

func nodeIDFlag(def string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "id",
		Value:   def,
		Usage:   "process name used in logs",
		EnvVars: []string{"RAVENFS_NODE_ID"},
	}
}

func defaultNodeID(prefix string) string {
	if host, err := os.Hostname(); err == nil {
		return prefix + "-" + host
	}
	return prefix
}

var gatewayCmd = &cli.Command{
	Name:  "gateway",
	Usage: "Run the HTTP gateway",
	Flags: []cli.Flag{
		nodeIDFlag(defaultNodeID("gateway")),
		&cli.StringFlag{Name: "listen", Usage: "listen address, overrides gateway.listen"},
		&cli.StringSliceFlag{Name: "node", Usage: "storage node address (repeatable), overrides gateway.storage_nodes"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		if l := ctx.String("listen"); l != "" {
			cfg.Gateway.Listen = l
		}
		if nodes := ctx.StringSlice("node"); len(nodes) > 0 {
			cfg.Gateway.StorageNodes = nodes
		}

		r, err := gateway.Build(gateway.Options{NodeID: ctx.String("id"), Config: cfg})
		if err != nil {
			return err
		}
		return r.Run()
	},
}

var nodeCmd = &cli.Command{
	Name:  "node",
	Usage: "Run a storage node",
	Flags: []cli.Flag{
		nodeIDFlag(defaultNodeID("node")),
		&cli.StringFlag{Name: "listen", Usage: "listen address, overrides node.listen"},
		&cli.StringFlag{Name: "dir", Usage: "chunk directory, overrides node.chunks_dir"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		if l := ctx.String("listen"); l != "" {
			cfg.Node.Listen = l
		}
		if d := ctx.String("dir"); d != "" {
			cfg.Node.ChunksDir = d
		}

		r, err := node.Build(node.Options{NodeID: ctx.String("id"), Config: cfg})
		if err != nil {
			return err
		}
		return r.Run()
	},
}

var metadataCmd = &cli.Command{
	Name:  "metadata",
	Usage: "Run the standalone metadata registry",
	Flags: []cli.Flag{
		nodeIDFlag(defaultNodeID("metadata")),
		&cli.StringFlag{Name: "listen", Usage: "listen address, overrides registry.listen"},
		&cli.StringFlag{Name: "db", Usage: "sqlite database path, overrides registry.store.sqlite_path"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		if l := ctx.String("listen"); l != "" {
			cfg.Registry.Listen = l
		}
		if db := ctx.String("db"); db != "" {
			cfg.Registry.Store.SQLitePath = db
		}

		r, err := metadata.Build(metadata.Options{NodeID: ctx.String("id"), Config: cfg})
		if err != nil {
			return err
		}
		return r.Run()
	},
}
