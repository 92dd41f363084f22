// Package tcp implements a framed TCP wire adapter for activefs.FileSystem:
// one persistent connection per partition, a tagged command/response
// envelope, and raw data frames for streaming bodies - generalizing the
// teacher's GRPCCommunicator/HTTPCommunicator's "Message{Type, Payload}"
// envelope (reflect-driven payload dispatch in the gRPC case) into a
// gob-free, hand-framed binary protocol: uint8 tag, uint32 big-endian
// length, then payload (JSON for control frames, raw bytes for data
// frames). protoc/gRPC stub generation isn't available here, so this is
// the wire format spec.md's own §6 calls for rather than a borrowed RPC
// framework (see DESIGN.md).
package tcp

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/AnishMulay/clusterfs/internal/activefs"
)

type tag uint8

const (
	tagUpload tag = iota + 1
	tagUploadSized
	tagAppend
	tagDownload
	tagDelete
	tagDeleteAll
	tagCopy
	tagMove
	tagCopyAll
	tagMoveAll
	tagList
	tagInfo
	tagInfoAll
	tagPing

	tagData     // raw byte chunk, payload is the chunk itself
	tagFinished // end of data frames for this stream
	tagAck      // generic success, no payload
	tagError    // payload is errorPayload
	tagResult   // payload is a JSON-encoded result value
)

const maxFrame = 64 * 1024 * 1024

// errorPayload is the wire shape of a failed command, mirroring §6's
// {errorCode, message} table.
type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorFromWire(p errorPayload) error {
	switch activefs.ErrorCode(p.Code) {
	case activefs.CodeFileNotFound:
		return activefs.ErrFileNotFound
	case activefs.CodeFileExists:
		return activefs.ErrFileExists
	case activefs.CodeBadPath:
		return activefs.ErrBadPath
	case activefs.CodeBadRange:
		return activefs.ErrBadRange
	case activefs.CodeIsDirectory:
		return activefs.ErrIsDirectory
	case activefs.CodeMalformedGlob:
		return activefs.ErrMalformedGlob
	case activefs.CodeIllegalOffset:
		return activefs.ErrIllegalOffset
	case activefs.CodeUnexpectedData:
		return activefs.ErrUnexpectedData
	case activefs.CodeUnexpectedEndOfStream:
		return activefs.ErrUnexpectedEndOfStream
	default:
		if p.Message == "" {
			return fmt.Errorf("tcp wire: unknown error code %d", p.Code)
		}
		return fmt.Errorf("tcp wire: %s", p.Message)
	}
}

func errorToWire(err error) errorPayload {
	return errorPayload{Code: int(activefs.Code(err)), Message: err.Error()}
}

// uploadRequest/appendRequest/downloadRequest/pairRequest/namesRequest/
// listRequest/mapRequest are the JSON control-frame payloads for each
// command tag that carries structured arguments.
type uploadRequest struct {
	Name string `json:"name"`
	Size uint64 `json:"size,omitempty"`
}

type appendRequest struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
}

type downloadRequest struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type namesRequest struct {
	Names []string `json:"names"`
}

type pairRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

type mapRequest struct {
	Pairs map[string]string `json:"pairs"`
}

type listRequest struct {
	Glob string `json:"glob"`
}

// frameWriter/frameReader wrap a connection's buffered I/O with the tagged
// length-prefixed framing every command and response uses.
type frameWriter struct {
	w *bufio.Writer
}

func newFrameWriter(w io.Writer) *frameWriter { return &frameWriter{w: bufio.NewWriter(w)} }

func (f *frameWriter) writeFrame(t tag, payload []byte) error {
	var header [5]byte
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := f.w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := f.w.Write(payload); err != nil {
			return err
		}
	}
	return f.w.Flush()
}

func (f *frameWriter) writeJSON(t tag, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.writeFrame(t, payload)
}

type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader { return &frameReader{r: bufio.NewReader(r)} }

func (f *frameReader) readFrame() (tag, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(f.r, header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrame {
		return 0, nil, fmt.Errorf("tcp wire: frame of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(f.r, payload); err != nil {
			return 0, nil, err
		}
	}
	return tag(header[0]), payload, nil
}

func (f *frameReader) readJSON(v any) (tag, error) {
	t, payload, err := f.readFrame()
	if err != nil {
		return 0, err
	}
	if t == tagError {
		var ep errorPayload
		_ = json.Unmarshal(payload, &ep)
		return t, errorFromWire(ep)
	}
	if len(payload) > 0 && v != nil {
		if err := json.Unmarshal(payload, v); err != nil {
			return t, err
		}
	}
	return t, nil
}
