// Command clusterfs-mcp exposes cluster file operations as MCP tools over
// stdio, grounded on the teacher's cmd/mcp/main.go: same mark3labs/mcp-go
// server construction and RequireString-based argument handling, generalized
// from its hardcoded store/read-file demo against a fake server registry
// into real upload/download/list/info/delete tools against a live cluster
// FS built from this repo's own YAML config.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
	"github.com/AnishMulay/clusterfs/internal/cluster"
	"github.com/AnishMulay/clusterfs/internal/config"
	"github.com/AnishMulay/clusterfs/internal/logging"
	"github.com/AnishMulay/clusterfs/internal/partitions"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery/etcd"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery/static"
	"github.com/AnishMulay/clusterfs/internal/wire/tcp"
)

func main() {
	configPath := flag.String("config", "clusterfs.yaml", "path to the cluster's YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "clusterfs-mcp:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	log := logging.New("clusterfs-mcp")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir := partitions.New(log.With(map[string]any{"role": "directory"}), partitions.RendezvousSelector{})

	dial := func(address string) (activefs.FileSystem, error) {
		return tcp.NewClient(address), nil
	}

	var src discovery.Source
	switch cfg.Discovery.Mode {
	case "", "static":
		list := make([]static.Partition, len(cfg.Partitions))
		for i, p := range cfg.Partitions {
			list[i] = static.Partition{ID: p.ID, Address: p.Address}
		}
		src = static.New(dir, list, dial)
	case "etcd":
		src = etcd.New(dir, cfg.Discovery.EtcdEndpoints, dial)
	default:
		return fmt.Errorf("unknown discovery mode %q", cfg.Discovery.Mode)
	}

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		log.Warn(logging.Event{Message: "discovery start reported errors", Fields: map[string]any{"error": err.Error()}})
	}
	defer src.Stop(context.Background())

	fs, err := cluster.New(dir, cfg.Cluster.ToClusterConfig(), log)
	if err != nil {
		return fmt.Errorf("build cluster composer: %w", err)
	}

	s := server.NewMCPServer(
		"clusterfs",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	addTools(s, fs)

	return server.ServeStdio(s)
}

func addTools(s *server.MCPServer, fs activefs.FileSystem) {
	s.AddTool(mcp.NewTool("upload",
		mcp.WithDescription("Upload content as a named file in the cluster"),
		mcp.WithString("name", mcp.Required(), mcp.Description("file name/path to store under")),
		mcp.WithString("content", mcp.Required(), mcp.Description("file content")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpload(ctx, req, fs)
	})

	s.AddTool(mcp.NewTool("download",
		mcp.WithDescription("Download a named file's content from the cluster"),
		mcp.WithString("name", mcp.Required(), mcp.Description("file name/path to read")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDownload(ctx, req, fs)
	})

	s.AddTool(mcp.NewTool("list",
		mcp.WithDescription("List files matching a glob pattern"),
		mcp.WithString("glob", mcp.Description("glob pattern, defaults to ** (everything)")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleList(ctx, req, fs)
	})

	s.AddTool(mcp.NewTool("info",
		mcp.WithDescription("Show metadata for a named file"),
		mcp.WithString("name", mcp.Required(), mcp.Description("file name/path")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleInfo(ctx, req, fs)
	})

	s.AddTool(mcp.NewTool("delete",
		mcp.WithDescription("Delete a named file from the cluster"),
		mcp.WithString("name", mcp.Required(), mcp.Description("file name/path")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDelete(ctx, req, fs)
	})
}

func handleUpload(ctx context.Context, request mcp.CallToolRequest, fs activefs.FileSystem) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	consumer, err := fs.UploadSized(ctx, name, uint64(len(content)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start upload: %v", err)), nil
	}
	if err := consumer.Accept(ctx, bytestream.NewChunk([]byte(content))); err != nil {
		_ = consumer.Close(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to stream upload: %v", err)), nil
	}
	if err := consumer.Ack(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to commit upload: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("stored %s (%d bytes)", name, len(content))), nil
}

func handleDownload(ctx context.Context, request mcp.CallToolRequest, fs activefs.FileSystem) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	supplier, err := fs.Download(ctx, name, 0, ^uint64(0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to download %s: %v", name, err)), nil
	}
	defer supplier.Close(nil)

	var buf strings.Builder
	if _, err := bytestream.ToWriter(ctx, supplier, writerFunc(func(p []byte) (int, error) {
		return buf.Write(p)
	})); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %v", name, err)), nil
	}

	return mcp.NewToolResultText(buf.String()), nil
}

func handleList(ctx context.Context, request mcp.CallToolRequest, fs activefs.FileSystem) (*mcp.CallToolResult, error) {
	glob, _ := request.RequireString("glob")
	if glob == "" {
		glob = "**"
	}

	entries, err := fs.List(ctx, glob)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list %s: %v", glob, err)), nil
	}

	var sb strings.Builder
	for name, meta := range entries {
		fmt.Fprintf(&sb, "%s\t%d bytes\n", name, meta.Size)
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("no files match " + glob), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func handleInfo(ctx context.Context, request mcp.CallToolRequest, fs activefs.FileSystem) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meta, err := fs.Info(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stat %s: %v", name, err)), nil
	}
	if meta == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s: not found", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %d bytes, mtime %d", name, meta.Size, meta.ModTime)), nil
}

func handleDelete(ctx context.Context, request mcp.CallToolRequest, fs activefs.FileSystem) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := fs.Delete(ctx, name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete %s: %v", name, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %s", name)), nil
}

// writerFunc adapts a func into an io.Writer.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

var _ io.Writer = writerFunc(nil)
