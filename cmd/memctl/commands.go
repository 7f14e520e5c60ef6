package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/client"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

const usage = `usage: memctl [-addr URL] [-timeout D] <command> [args]

commands:
  stats                          allocator counters
  debug                          per-slab dump
  alloc [-table N] [-depth N] DESC...
  free  [-table N] [-depth N] DESC...
  upload [-zstd] FILE            store an image
  list                           list stored images
  get ID                         image metadata
  download [-o FILE] ID          image bytes
  delete ID                      free an image

DESC is type:count:slot[:size_class], e.g. frame:4:100:12`

type command func(ctx context.Context, c *client.Client, args []string, out io.Writer) error

var commands = map[string]command{
	"stats":    statsCmd,
	"debug":    debugCmd,
	"alloc":    bundleCmd(true),
	"free":     bundleCmd(false),
	"upload":   uploadCmd,
	"list":     listCmd,
	"get":      getCmd,
	"download": downloadCmd,
	"delete":   deleteCmd,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("memctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", envOr("MEMMGR_ADDR", "http://localhost:8000"), "memory manager URL")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no command\n%s", usage)
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", name, usage)
	}

	cfg := client.DefaultConfig(*addr)
	cfg.Timeout = *timeout
	return cmd(ctx, client.New(cfg), fs.Args()[1:], out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(out io.Writer, v any) error {
	data, err := wire.API.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

func oneArg(name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: want exactly one argument", name)
	}
	return args[0], nil
}

func statsCmd(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, stats)
}

func debugCmd(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	slabs, err := c.Debug(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, wire.DebugResponse{Slabs: slabs})
}

func bundleCmd(alloc bool) command {
	return func(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
		fs := flag.NewFlagSet("bundle", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		table := fs.Uint64("table", uint64(kernel.RootCNodeSlot), "capability table slot")
		depth := fs.Uint("depth", 12, "table depth")
		if err := fs.Parse(args); err != nil {
			return err
		}

		b, err := parseBundle(kernel.CPtr(*table), uint8(*depth), fs.Args())
		if err != nil {
			return err
		}

		if !alloc {
			n, err := c.Free(ctx, b)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]uint64{"objects": n})
		}

		got, err := c.Alloc(ctx, b)
		if err != nil {
			return err
		}
		return printJSON(out, wire.FromBundle(got))
	}
}

func uploadCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	compress := fs.Bool("zstd", false, "compress with zstd before sending")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg("upload", fs.Args())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	enc := upload.Identity
	if *compress {
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return err
		}
		data = zw.EncodeAll(data, nil)
		if err := zw.Close(); err != nil {
			return err
		}
		enc = upload.Zstd
	}

	img, err := c.Upload(ctx, data, enc)
	if err != nil {
		return err
	}
	return printJSON(out, img)
}

func listCmd(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	imgs, err := c.Uploads(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, wire.UploadList{Uploads: imgs, Count: len(imgs)})
}

func getCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	uploadID, err := oneArg("get", args)
	if err != nil {
		return err
	}
	img, err := c.GetUpload(ctx, uploadID)
	if err != nil {
		return err
	}
	return printJSON(out, img)
}

func downloadCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dest := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uploadID, err := oneArg("download", fs.Args())
	if err != nil {
		return err
	}

	if *dest == "" {
		_, err := c.Download(ctx, uploadID, out)
		return err
	}
	f, err := os.Create(*dest)
	if err != nil {
		return err
	}
	if _, err := c.Download(ctx, uploadID, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func deleteCmd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	uploadID, err := oneArg("delete", args)
	if err != nil {
		return err
	}
	if err := c.DeleteUpload(ctx, uploadID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "deleted %s\n", uploadID)
	return err
}
