package rpc

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// FrameTransport is a duplex frame stream: any transport able to carry
// discrete Frames in order satisfies it. WSTransport is the reference
// binding; tests use an in-memory channel pair implementation.
type FrameTransport interface {
	ReadFrame() (*Frame, error)
	WriteFrame(f *Frame) error
	Close() error
}

// WSTransport frames one Frame per WebSocket text message, JSON-encoded —
// the reference encoding named in spec.md §6.
type WSTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an established WebSocket connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

func (t *WSTransport) ReadFrame() (*Frame, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (t *WSTransport) WriteFrame(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// ChanTransport is an in-memory FrameTransport pair, used to test Conn
// without a network socket.
type ChanTransport struct {
	in     chan *Frame
	out    chan *Frame
	closed chan struct{}
}

// NewChanTransportPair returns two linked transports: frames written to
// one are read from the other.
func NewChanTransportPair() (*ChanTransport, *ChanTransport) {
	ab := make(chan *Frame, 64)
	ba := make(chan *Frame, 64)
	a := &ChanTransport{in: ba, out: ab, closed: make(chan struct{})}
	b := &ChanTransport{in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

func (t *ChanTransport) ReadFrame() (*Frame, error) {
	select {
	case f, ok := <-t.in:
		if !ok {
			return nil, errClosedTransport
		}
		return f, nil
	case <-t.closed:
		return nil, errClosedTransport
	}
}

func (t *ChanTransport) WriteFrame(f *Frame) error {
	select {
	case t.out <- f:
		return nil
	case <-t.closed:
		return errClosedTransport
	}
}

func (t *ChanTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}

var errClosedTransport = &transportClosedError{}

type transportClosedError struct{}

func (*transportClosedError) Error() string { return "rpc: transport closed" }
