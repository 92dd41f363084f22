// Command clusterfs-client is a small CLI against a node's HTTP client
// surface, grounded on the teacher's cmd/client flag-driven shape but
// generalized from a single ping demo into real file operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AnishMulay/clusterfs/internal/bytestream"
	httpwire "github.com/AnishMulay/clusterfs/internal/wire/http"
)

func main() {
	server := flag.String("server", "http://localhost:9000", "cluster node base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "command timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := httpwire.NewClient(*server)
	if err := dispatch(ctx, c, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "clusterfs-client:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: clusterfs-client [-server url] <command> [args]

commands:
  upload <name> <localpath>     upload a local file under name
  download <name> <localpath>   download name to a local file
  list <glob>                   list names matching glob
  info <name>                   show metadata for name
  delete <name>                 delete name
  move <src> <dst>               move src to dst
  copy <src> <dst>               copy src to dst
  ping                           check cluster health`)
}

func dispatch(ctx context.Context, c *httpwire.Client, cmd string, args []string) error {
	switch cmd {
	case "upload":
		if len(args) != 2 {
			return fmt.Errorf("upload requires <name> <localpath>")
		}
		return uploadFile(ctx, c, args[0], args[1])
	case "download":
		if len(args) != 2 {
			return fmt.Errorf("download requires <name> <localpath>")
		}
		return downloadFile(ctx, c, args[0], args[1])
	case "list":
		glob := "**"
		if len(args) > 0 {
			glob = args[0]
		}
		return listGlob(ctx, c, glob)
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("info requires <name>")
		}
		return showInfo(ctx, c, args[0])
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("delete requires <name>")
		}
		return c.Delete(ctx, args[0])
	case "move":
		if len(args) != 2 {
			return fmt.Errorf("move requires <src> <dst>")
		}
		return c.Move(ctx, args[0], args[1])
	case "copy":
		if len(args) != 2 {
			return fmt.Errorf("copy requires <src> <dst>")
		}
		return c.Copy(ctx, args[0], args[1])
	case "ping":
		return c.Ping(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func uploadFile(ctx context.Context, c *httpwire.Client, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	consumer, err := c.UploadSized(ctx, name, uint64(fi.Size()))
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}

	supplier := bytestream.FromReader(f, 64*1024)
	defer supplier.Close(nil)
	for {
		chunk, err := supplier.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = consumer.Close(err)
			return fmt.Errorf("read local file: %w", err)
		}
		if err := consumer.Accept(ctx, chunk); err != nil {
			_ = consumer.Close(err)
			return fmt.Errorf("stream upload: %w", err)
		}
	}
	if err := consumer.Ack(ctx); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

func downloadFile(ctx context.Context, c *httpwire.Client, name, localPath string) error {
	supplier, err := c.Download(ctx, name, 0, ^uint64(0))
	if err != nil {
		return fmt.Errorf("open download: %w", err)
	}
	defer supplier.Close(nil)

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := bytestream.ToWriter(ctx, supplier, f); err != nil {
		return fmt.Errorf("stream download: %w", err)
	}
	return nil
}

func listGlob(ctx context.Context, c *httpwire.Client, glob string) error {
	entries, err := c.List(ctx, glob)
	if err != nil {
		return err
	}
	for name, meta := range entries {
		fmt.Printf("%s\t%d\t%s\n", name, meta.Size, time.Unix(0, meta.ModTime).Format(time.RFC3339))
	}
	return nil
}

func showInfo(ctx context.Context, c *httpwire.Client, name string) error {
	meta, err := c.Info(ctx, name)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%s: not found", name)
	}
	fmt.Printf("size: %d\nmodified: %s\n", meta.Size, time.Unix(0, meta.ModTime).Format(time.RFC3339))
	return nil
}
