// Package transport defines interfaces and implementations for sending and receiving MCP messages.
package transport

// file: internal/transport/transport.go

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
)

// DefaultMaxMessageSize is the default limit for a single inbound message in bytes.
const DefaultMaxMessageSize = 1024 * 1024 // 1MB.

// Transport defines the interface for sending and receiving framed messages.
// Implementations must be safe for one reader and concurrent writers.
type Transport interface {
	// ReadMessage blocks until one complete message is available. At end of
	// stream it returns an error for which IsClosedError is true.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage writes one message atomically and flushes it.
	WriteMessage(ctx context.Context, message []byte) error

	// Close shuts down the transport, closing any underlying streams.
	Close() error
}

// Options configures an NDJSONTransport.
type Options struct {
	// MaxMessageSize limits inbound lines. Zero means DefaultMaxMessageSize.
	MaxMessageSize int
}

// NDJSONTransport frames messages as newline-delimited JSON: one value per
// line in both directions.
type NDJSONTransport struct {
	reader    *bufio.Reader
	writer    *bufio.Writer
	closer    io.Closer
	maxSize   int
	logger    logging.Logger
	writeLock sync.Mutex
	closed    bool
	closeLock sync.RWMutex
}

// NewNDJSONTransport creates a transport reading from reader and writing to
// writer. closer, if non-nil, is closed by Close.
func NewNDJSONTransport(reader io.Reader, writer io.Writer, closer io.Closer, opts Options, logger logging.Logger) *NDJSONTransport {
	logger = logging.OrNoop(logger)
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &NDJSONTransport{
		reader:  bufio.NewReader(reader),
		writer:  bufio.NewWriter(writer),
		closer:  closer,
		maxSize: opts.MaxMessageSize,
		logger:  logger.WithField("component", "ndjson_transport"),
	}
}

// NewStdioTransport binds an NDJSONTransport to the process's standard streams.
func NewStdioTransport(opts Options, logger logging.Logger) *NDJSONTransport {
	return NewNDJSONTransport(os.Stdin, os.Stdout, nil, opts, logger)
}

func (t *NDJSONTransport) isClosed() bool {
	t.closeLock.RLock()
	defer t.closeLock.RUnlock()
	return t.closed
}

// ReadMessage implements Transport.ReadMessage. Blank lines are skipped.
// A line longer than the size limit is consumed to its end and reported as a
// size error, so the next call starts at the following message.
func (t *NDJSONTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	if t.isClosed() {
		return nil, NewClosedError("read")
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		for {
			data, err := t.readLine()
			if err == nil && len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			resultCh <- readResult{data, err}
			return
		}
	}()

	select {
	case <-ctx.Done():
		t.logger.Debug("Context cancelled while reading message.", "error", ctx.Err())
		return nil, NewTimeoutError("read", ctx.Err())
	case result := <-resultCh:
		if result.err != nil {
			if !IsClosedError(result.err) {
				t.logger.Warn("Failed to read message.", "error", result.err)
			}
			return nil, result.err
		}
		t.logger.Debug("Received raw message.", "size", len(result.data), "contentPreview", preview(result.data))
		return result.data, nil
	}
}

func (t *NDJSONTransport) readLine() ([]byte, error) {
	var buffer bytes.Buffer
	totalSize := 0
	oversized := false

	for {
		line, isPrefix, err := t.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if buffer.Len() > 0 || oversized {
					break
				}
				return nil, NewEOFError()
			}
			return nil, NewError(ErrGeneric, "failed to read message line", err)
		}

		totalSize += len(line)
		if !oversized {
			if totalSize > t.maxSize {
				oversized = true
			} else {
				buffer.Write(line)
			}
		}
		if !isPrefix {
			break
		}
	}

	if oversized {
		return nil, NewMessageSizeError(totalSize, t.maxSize, firstBytes(buffer.Bytes(), previewLimit))
	}
	return buffer.Bytes(), nil
}

// WriteMessage implements Transport.WriteMessage. The message and its
// newline are written under a lock and flushed before returning.
func (t *NDJSONTransport) WriteMessage(ctx context.Context, message []byte) error {
	if t.isClosed() {
		return NewClosedError("write")
	}
	if err := ctx.Err(); err != nil {
		return NewTimeoutError("write", err)
	}
	if bytes.IndexByte(message, '\n') >= 0 {
		return NewError(ErrInvalidMessage, "message contains a newline and cannot be framed", nil)
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	t.logger.Debug("Writing message.", "size", len(message)+1, "contentPreview", preview(message))
	if _, err := t.writer.Write(message); err != nil {
		return NewError(ErrGeneric, "failed to write message", err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return NewError(ErrGeneric, "failed to write message delimiter", err)
	}
	if err := t.writer.Flush(); err != nil {
		return NewError(ErrGeneric, "failed to flush message", err)
	}
	return nil
}

// Close implements Transport.Close.
func (t *NDJSONTransport) Close() error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	if t.closed {
		return nil
	}
	t.logger.Info("Closing NDJSON transport.")
	t.closed = true

	t.writeLock.Lock()
	flushErr := t.writer.Flush()
	t.writeLock.Unlock()

	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return NewError(ErrTransportClosed, "failed to close underlying transport stream", err)
		}
	}
	if flushErr != nil {
		return NewError(ErrGeneric, "failed to flush on close", flushErr)
	}
	return nil
}

func firstBytes(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}

func preview(data []byte) string {
	return string(firstBytes(data, previewLimit))
}
