package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	ravenlib "github.com/AnishMulay/ravenfs/clients/library"
)

func clientFrom(ctx *cli.Context) *ravenlib.Client {
	return ravenlib.NewClient(ctx.String("gateway"))
}

var uploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "Upload a local file",
	ArgsUsage: "<path>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("upload takes exactly one path", 2)
		}

		res, err := clientFrom(ctx).UploadFile(ctx.Context, ctx.Args().First())
		if err != nil {
			return err
		}

		w := ctx.App.Writer
		fmt.Fprintf(w, "file_id: %s\n", res.FileID)
		fmt.Fprintf(w, "name:    %s\n", res.Filename)
		fmt.Fprintf(w, "size:    %s\n", humanize.IBytes(uint64(res.FileSize)))
		fmt.Fprintf(w, "sha256:  %s\n", res.FileHash)
		fmt.Fprintf(w, "chunks:  %d\n", res.TotalChunks)
		if res.Degraded {
			for _, c := range res.Chunks {
				fmt.Fprintf(w, "  chunk %d held by [%s]\n", c.Order, c.StorageNodes)
			}
			fmt.Fprintln(w, "warning: some chunks are stored on fewer nodes than configured")
		}
		return nil
	},
}

var downloadCmd = &cli.Command{
	Name:      "download",
	Usage:     "Download a file by ID",
	ArgsUsage: "<file-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output path; defaults to the stored file name"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("download takes exactly one file id", 2)
		}
		fileID := ctx.Args().First()
		out := ctx.String("output")

		dir := "."
		if out != "" {
			dir = filepath.Dir(out)
		}
		tmp, err := os.CreateTemp(dir, ".ravenfs-download-*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())

		name, err := clientFrom(ctx).Download(ctx.Context, fileID, tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		if out == "" {
			out = filepath.Base(name)
		}
		if err := os.Rename(tmp.Name(), out); err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "saved %s to %s\n", fileID, out)
		return nil
	},
}

var rmCmd = &cli.Command{
	Name:      "rm",
	Usage:     "Delete a file and its chunks",
	ArgsUsage: "<file-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("rm takes exactly one file id", 2)
		}

		res, err := clientFrom(ctx).Delete(ctx.Context, ctx.Args().First())
		if errors.Is(err, ravenlib.ErrNotFound) {
			return cli.Exit(err.Error(), 1)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(ctx.App.Writer, res.Message)
		if !res.Complete {
			orders := make([]int, 0, len(res.DeleteResults))
			for order := range res.DeleteResults {
				orders = append(orders, order)
			}
			sort.Ints(orders)
			for _, order := range orders {
				for node, o := range res.DeleteResults[order] {
					if o.Status == "error" {
						fmt.Fprintf(ctx.App.Writer, "  chunk %d on %s: %s\n", order, node, o.Error)
					}
				}
			}
		}
		return nil
	},
}

var lsCmd = &cli.Command{
	Name:  "ls",
	Usage: "List stored files",
	Action: func(ctx *cli.Context) error {
		files, err := clientFrom(ctx).List(ctx.Context)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tCHUNKS\tCREATED")
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.FileID, f.Filename, humanize.IBytes(uint64(f.FileSize)), f.TotalChunks, humanize.Time(f.CreatedAt))
		}
		return tw.Flush()
	},
}

var healthCmd = &cli.Command{
	Name:  "health",
	Usage: "Show storage node reachability as seen by the gateway",
	Action: func(ctx *cli.Context) error {
		h, err := clientFrom(ctx).Health(ctx.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "gateway: %s\n", h.Status)
		for _, n := range h.Nodes {
			fmt.Fprintf(ctx.App.Writer, "  %s\t%s\n", n.Node, n.Status)
		}
		if h.Status == "unavailable" {
			return cli.Exit("no storage node reachable", 1)
		}
		return nil
	},
}
