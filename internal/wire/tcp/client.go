package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

var _ activefs.FileSystem = (*Client)(nil)

// Client is an activefs.FileSystem talking to a Server over one persistent
// TCP connection, reconnecting lazily on failure. Every call holds mu for
// its entire round trip (including any streamed data frames), matching the
// "one connection per peer, one in-flight command at a time" model spec.md
// §5 describes for partition connections.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	fr   *frameReader
	fw   *frameWriter
}

// NewClient builds a Client that dials addr on first use.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

func (c *Client) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.fr = newFrameReader(conn)
	c.fw = newFrameWriter(conn)
	return nil
}

func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.fr, c.fw = nil, nil, nil
}

// roundTrip sends a command frame and waits for a single tagAck/tagResult/
// tagError response. The caller is expected to hold mu.
func (c *Client) roundTrip(t tag, req any, result any) error {
	if err := c.ensureConn(); err != nil {
		return err
	}
	if err := c.fw.writeJSON(t, req); err != nil {
		c.reset()
		return err
	}
	if _, err := c.fr.readJSON(result); err != nil {
		if isFsErr(err) {
			return err
		}
		c.reset()
		return err
	}
	return nil
}

func isFsErr(err error) bool {
	return activefs.IsApplicationError(err)
}

func (c *Client) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	return c.upload(ctx, tagUpload, uploadRequest{Name: name})
}

func (c *Client) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	return c.upload(ctx, tagUploadSized, uploadRequest{Name: name, Size: size})
}

func (c *Client) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	return c.upload(ctx, tagAppend, appendRequest{Name: name, Offset: offset})
}

// upload locks the connection for the whole streamed command, opening it
// with the given control request, returning a Consumer whose Accept writes
// tagData frames directly and whose Ack sends tagFinished and waits for the
// server's final tagAck, unlocking the connection only then.
func (c *Client) upload(ctx context.Context, t tag, req any) (bytestream.Consumer, error) {
	c.mu.Lock()
	if err := c.ensureConn(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.fw.writeJSON(t, req); err != nil {
		c.reset()
		c.mu.Unlock()
		return nil, err
	}
	rt, payload, err := c.fr.readFrame()
	if err != nil {
		c.reset()
		c.mu.Unlock()
		return nil, err
	}
	if rt == tagError {
		var ep errorPayload
		_ = unmarshalError(payload, &ep)
		c.mu.Unlock()
		return nil, errorFromWire(ep)
	}
	return &clientUploadConsumer{client: c}, nil
}

// clientUploadConsumer holds the client's connection lock for its entire
// lifetime: Accept streams tagData frames directly to the wire, and
// exactly one of Ack, Close or a failed Accept releases the lock (done
// tracks whether that has happened).
type clientUploadConsumer struct {
	client *Client
	done   bool
	err    error
}

func (u *clientUploadConsumer) Accept(ctx context.Context, chunk bytestream.Chunk) error {
	defer chunk.Release()
	if u.done {
		return u.err
	}
	if err := u.client.fw.writeFrame(tagData, chunk.Data); err != nil {
		u.err = err
		u.done = true
		u.client.reset()
		u.client.mu.Unlock()
		return err
	}
	return nil
}

func (u *clientUploadConsumer) Ack(ctx context.Context) error {
	if u.done {
		return u.err
	}
	u.done = true
	defer u.client.mu.Unlock()
	if err := u.client.fw.writeFrame(tagFinished, nil); err != nil {
		u.client.reset()
		return err
	}
	_, err := u.client.fr.readJSON(nil)
	if err != nil && !isFsErr(err) {
		u.client.reset()
	}
	return err
}

func (u *clientUploadConsumer) Close(cause error) error {
	if !u.done {
		u.done = true
		u.client.reset()
		u.client.mu.Unlock()
	}
	return nil
}

func (c *Client) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	c.mu.Lock()
	if err := c.ensureConn(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	req := downloadRequest{Name: name, Offset: offset, Limit: limit}
	if err := c.fw.writeJSON(tagDownload, req); err != nil {
		c.reset()
		c.mu.Unlock()
		return nil, err
	}
	rt, payload, err := c.fr.readFrame()
	if err != nil {
		c.reset()
		c.mu.Unlock()
		return nil, err
	}
	if rt == tagError {
		var ep errorPayload
		_ = unmarshalError(payload, &ep)
		c.mu.Unlock()
		return nil, errorFromWire(ep)
	}
	return &clientDownloadSupplier{client: c}, nil
}

type clientDownloadSupplier struct {
	client *Client
	done   bool
}

func (d *clientDownloadSupplier) Next(ctx context.Context) (bytestream.Chunk, error) {
	if d.done {
		return bytestream.Chunk{}, io.EOF
	}
	t, payload, err := d.client.fr.readFrame()
	if err != nil {
		d.done = true
		d.client.reset()
		d.client.mu.Unlock()
		return bytestream.Chunk{}, err
	}
	switch t {
	case tagData:
		return bytestream.NewChunk(payload), nil
	case tagFinished:
		d.done = true
		d.client.mu.Unlock()
		return bytestream.Chunk{}, io.EOF
	case tagError:
		d.done = true
		var ep errorPayload
		_ = unmarshalError(payload, &ep)
		d.client.mu.Unlock()
		return bytestream.Chunk{}, errorFromWire(ep)
	default:
		d.done = true
		d.client.reset()
		d.client.mu.Unlock()
		return bytestream.Chunk{}, errors.New("tcp wire: unexpected frame during download")
	}
}

func (d *clientDownloadSupplier) Close(cause error) error {
	if !d.done {
		d.done = true
		d.client.reset()
		d.client.mu.Unlock()
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagDelete, nameRequest{Name: name}, nil)
}

func (c *Client) DeleteAll(ctx context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagDeleteAll, namesRequest{Names: names}, nil)
}

func (c *Client) Copy(ctx context.Context, src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagCopy, pairRequest{Src: src, Dst: dst}, nil)
}

func (c *Client) Move(ctx context.Context, src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagMove, pairRequest{Src: src, Dst: dst}, nil)
}

func (c *Client) CopyAll(ctx context.Context, sourceToTarget map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagCopyAll, mapRequest{Pairs: sourceToTarget}, nil)
}

func (c *Client) MoveAll(ctx context.Context, sourceToTarget map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagMoveAll, mapRequest{Pairs: sourceToTarget}, nil)
}

func (c *Client) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out map[string]activefs.Metadata
	err := c.roundTrip(tagList, listRequest{Glob: glob}, &out)
	return out, err
}

func (c *Client) Info(ctx context.Context, name string) (*activefs.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out *activefs.Metadata
	err := c.roundTrip(tagInfo, nameRequest{Name: name}, &out)
	return out, err
}

func (c *Client) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out map[string]activefs.Metadata
	err := c.roundTrip(tagInfoAll, namesRequest{Names: names}, &out)
	return out, err
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(tagPing, struct{}{}, nil)
}

func unmarshalError(payload []byte, ep *errorPayload) error {
	return json.Unmarshal(payload, ep)
}
