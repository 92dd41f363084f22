package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
	"github.com/AnishMulay/clusterfs/internal/logging"
)

// Server dispatches framed TCP commands to a wrapped activefs.FileSystem,
// one connection per peer, one command processed at a time per connection -
// the teacher's reflect-driven gRPC dispatch generalized into a switch on
// the command tag.
type Server struct {
	fs       activefs.FileSystem
	log      logging.Logger
	listener net.Listener
}

// NewServer builds a Server over fs; call Start to begin accepting.
func NewServer(fs activefs.FileSystem, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{fs: fs, log: log}
}

// Start listens on addr and serves accepted connections in background
// goroutines until Stop is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = lis
	s.log.Info(logging.Event{Message: "starting tcp wire server", Fields: map[string]any{"address": addr}})

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn)
		}
	}()
	return nil
}

// Stop closes the listener, which unblocks the accept loop.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	fr := newFrameReader(conn)
	fw := newFrameWriter(conn)
	ctx := context.Background()

	for {
		t, payload, err := fr.readFrame()
		if err != nil {
			return
		}
		if err := s.dispatch(ctx, t, payload, fr, fw); err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			s.log.Warn(logging.Event{Message: "tcp wire command failed", Fields: map[string]any{"error": err.Error()}})
		}
	}
}

func (s *Server) dispatch(ctx context.Context, t tag, payload []byte, fr *frameReader, fw *frameWriter) error {
	switch t {
	case tagUpload, tagUploadSized:
		return s.serveUpload(ctx, t, payload, fr, fw)
	case tagAppend:
		return s.serveAppend(ctx, payload, fr, fw)
	case tagDownload:
		return s.serveDownload(ctx, payload, fw)
	case tagDelete:
		var req nameRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fw.writeJSON(tagError, errorToWire(activefs.ErrBadPath))
		}
		return respondVoid(fw, s.fs.Delete(ctx, req.Name))
	case tagDeleteAll:
		var req namesRequest
		_ = json.Unmarshal(payload, &req)
		return respondVoid(fw, s.fs.DeleteAll(ctx, req.Names))
	case tagCopy:
		var req pairRequest
		_ = json.Unmarshal(payload, &req)
		return respondVoid(fw, s.fs.Copy(ctx, req.Src, req.Dst))
	case tagMove:
		var req pairRequest
		_ = json.Unmarshal(payload, &req)
		return respondVoid(fw, s.fs.Move(ctx, req.Src, req.Dst))
	case tagCopyAll:
		var req mapRequest
		_ = json.Unmarshal(payload, &req)
		return respondVoid(fw, s.fs.CopyAll(ctx, req.Pairs))
	case tagMoveAll:
		var req mapRequest
		_ = json.Unmarshal(payload, &req)
		return respondVoid(fw, s.fs.MoveAll(ctx, req.Pairs))
	case tagList:
		var req listRequest
		_ = json.Unmarshal(payload, &req)
		result, err := s.fs.List(ctx, req.Glob)
		return respondResult(fw, result, err)
	case tagInfo:
		var req nameRequest
		_ = json.Unmarshal(payload, &req)
		result, err := s.fs.Info(ctx, req.Name)
		return respondResult(fw, result, err)
	case tagInfoAll:
		var req namesRequest
		_ = json.Unmarshal(payload, &req)
		result, err := s.fs.InfoAll(ctx, req.Names)
		return respondResult(fw, result, err)
	case tagPing:
		return respondVoid(fw, s.fs.Ping(ctx))
	default:
		return fw.writeJSON(tagError, errorToWire(activefs.ErrBadPath))
	}
}

func respondVoid(fw *frameWriter, err error) error {
	if err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	return fw.writeFrame(tagAck, nil)
}

func respondResult(fw *frameWriter, result any, err error) error {
	if err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	return fw.writeJSON(tagResult, result)
}

func (s *Server) serveUpload(ctx context.Context, t tag, payload []byte, fr *frameReader, fw *frameWriter) error {
	var req uploadRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fw.writeJSON(tagError, errorToWire(activefs.ErrBadPath))
	}

	var consumer bytestream.Consumer
	var err error
	if t == tagUploadSized {
		consumer, err = s.fs.UploadSized(ctx, req.Name, req.Size)
	} else {
		consumer, err = s.fs.Upload(ctx, req.Name)
	}
	if err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	if err := fw.writeFrame(tagAck, nil); err != nil {
		_ = consumer.Close(err)
		return err
	}
	return s.drainInto(ctx, fr, fw, consumer)
}

func (s *Server) serveAppend(ctx context.Context, payload []byte, fr *frameReader, fw *frameWriter) error {
	var req appendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fw.writeJSON(tagError, errorToWire(activefs.ErrBadPath))
	}
	consumer, err := s.fs.Append(ctx, req.Name, req.Offset)
	if err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	if err := fw.writeFrame(tagAck, nil); err != nil {
		_ = consumer.Close(err)
		return err
	}
	return s.drainInto(ctx, fr, fw, consumer)
}

// drainInto reads tagData frames until tagFinished, feeding each into
// consumer, then Acks - the streaming half of upload/append.
func (s *Server) drainInto(ctx context.Context, fr *frameReader, fw *frameWriter, consumer bytestream.Consumer) error {
	for {
		t, data, err := fr.readFrame()
		if err != nil {
			_ = consumer.Close(err)
			return err
		}
		if t == tagFinished {
			break
		}
		if t != tagData {
			_ = consumer.Close(activefs.ErrUnexpectedData)
			return fw.writeJSON(tagError, errorToWire(activefs.ErrUnexpectedData))
		}
		chunk := bytestream.NewChunk(data)
		if aerr := consumer.Accept(ctx, chunk); aerr != nil {
			_ = consumer.Close(aerr)
			return fw.writeJSON(tagError, errorToWire(aerr))
		}
	}
	if err := consumer.Ack(ctx); err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	return fw.writeFrame(tagAck, nil)
}

func (s *Server) serveDownload(ctx context.Context, payload []byte, fw *frameWriter) error {
	var req downloadRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fw.writeJSON(tagError, errorToWire(activefs.ErrBadPath))
	}
	supplier, err := s.fs.Download(ctx, req.Name, req.Offset, req.Limit)
	if err != nil {
		return fw.writeJSON(tagError, errorToWire(err))
	}
	if err := fw.writeFrame(tagAck, nil); err != nil {
		return err
	}
	for {
		chunk, err := supplier.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			_ = supplier.Close(err)
			return fw.writeJSON(tagError, errorToWire(err))
		}
		werr := fw.writeFrame(tagData, chunk.Data)
		chunk.Release()
		if werr != nil {
			_ = supplier.Close(werr)
			return werr
		}
	}
	_ = supplier.Close(nil)
	return fw.writeFrame(tagFinished, nil)
}
