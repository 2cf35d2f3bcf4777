// file: internal/transport/in_memory_transport.go
package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

const inMemoryBuffer = 100

// InMemoryTransport is one end of a channel-backed connection. Each receive
// yields one whole message, so no framing is involved.
type InMemoryTransport struct {
	recv <-chan []byte
	send chan<- []byte

	closed atomic.Bool
	rmu    sync.Mutex
	wmu    sync.Mutex
}

// InMemoryTransportPair holds both ends of an in-process connection.
type InMemoryTransportPair struct {
	ClientTransport *InMemoryTransport
	ServerTransport *InMemoryTransport

	toServer chan []byte
	hangup   sync.Once
}

// NewInMemoryTransportPair returns connected client and server ends.
func NewInMemoryTransportPair() *InMemoryTransportPair {
	toServer := make(chan []byte, inMemoryBuffer)
	toClient := make(chan []byte, inMemoryBuffer)
	return &InMemoryTransportPair{
		ClientTransport: &InMemoryTransport{recv: toClient, send: toServer},
		ServerTransport: &InMemoryTransport{recv: toServer, send: toClient},
		toServer:        toServer,
	}
}

// CloseClientInput makes the server end observe end of stream once it has
// drained what the client already sent.
func (p *InMemoryTransportPair) CloseClientInput() {
	p.hangup.Do(func() { close(p.toServer) })
}

func (t *InMemoryTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	t.rmu.Lock()
	defer t.rmu.Unlock()
	if t.closed.Load() {
		return nil, NewClosedError("read")
	}
	select {
	case msg, ok := <-t.recv:
		if !ok {
			return nil, NewEOFError()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, NewTimeoutError("read", ctx.Err())
	}
}

// WriteMessage hands the peer its own copy of message.
func (t *InMemoryTransport) WriteMessage(ctx context.Context, message []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed.Load() {
		return NewClosedError("write")
	}
	msg := append([]byte(nil), message...)
	select {
	case t.send <- msg:
		return nil
	case <-ctx.Done():
		return NewTimeoutError("write", ctx.Err())
	}
}

// Close marks this end closed. The channels are left open for the peer.
func (t *InMemoryTransport) Close() error {
	t.closed.Store(true)
	return nil
}
