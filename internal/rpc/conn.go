package rpc

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/collabkit/internal/metrics"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
	"github.com/AltairaLabs/collabkit/pkg/logger"
)

// StreamItem is one element of a server-to-client reply stream
// (REPLY_STREAM followed by STREAM_OUTPUT_DATA/STREAM_OUTPUT_END).
type StreamItem struct {
	Data json.RawMessage
	Err  error
}

// StreamHandlerFunc implements a request name that replies with a stream
// instead of a single value.
type StreamHandlerFunc func(args []json.RawMessage) (<-chan StreamItem, error)

type pendingKey struct {
	service string
	id      int64
}

type pendingCall struct {
	reply  chan replyResult
	stream chan StreamItem
}

type replyResult struct {
	data json.RawMessage
	err  error
}

// Conn is one multiplexed connection: it dispatches incoming REQUEST
// frames to a ServiceRegistry and correlates outgoing REQUEST frames with
// their replies by (service, id), per spec.md §4.1.
type Conn struct {
	transport FrameTransport
	registry  *ServiceRegistry

	nextID int64

	mu      sync.Mutex
	pending map[pendingKey]*pendingCall

	eventMu sync.RWMutex
	events  map[pendingKey][]func(json.RawMessage)

	lifecycleMu sync.Mutex
	onConnect   []func()
	onDisconnect []func(error)
	onDestroy   []func()

	destroyed atomic.Bool
	done      chan struct{}
}

// NewConn wraps transport with a Conn dispatching requests to registry
// (nil is accepted for a pure client connection with no server side).
func NewConn(transport FrameTransport, registry *ServiceRegistry) *Conn {
	if registry == nil {
		registry = NewServiceRegistry()
	}
	c := &Conn{
		transport: transport,
		registry:  registry,
		pending:   make(map[pendingKey]*pendingCall),
		events:    make(map[pendingKey][]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	c.fireConnect()
	return c
}

// OnConnect registers a connect lifecycle hook.
func (c *Conn) OnConnect(fn func()) {
	c.lifecycleMu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.lifecycleMu.Unlock()
}

// OnDisconnect registers a disconnect lifecycle hook, called with the
// cause when the transport drops.
func (c *Conn) OnDisconnect(fn func(error)) {
	c.lifecycleMu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.lifecycleMu.Unlock()
}

// OnDestroy registers a destroy lifecycle hook.
func (c *Conn) OnDestroy(fn func()) {
	c.lifecycleMu.Lock()
	c.onDestroy = append(c.onDestroy, fn)
	c.lifecycleMu.Unlock()
}

func (c *Conn) fireConnect() {
	c.lifecycleMu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.lifecycleMu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (c *Conn) fireDisconnect(cause error) {
	c.lifecycleMu.Lock()
	hooks := append([]func(error){}, c.onDisconnect...)
	c.lifecycleMu.Unlock()
	for _, h := range hooks {
		h(cause)
	}
}

// Destroy is terminal: it fails every pending call with Disconnected,
// closes the transport, and fires the destroy lifecycle hooks. Further
// Request calls fail with Disconnected.
func (c *Conn) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	_ = c.transport.Close()
	c.failAllPending(collaberrors.NewDisconnected("rpc", "Destroy"))

	c.lifecycleMu.Lock()
	hooks := append([]func(){}, c.onDestroy...)
	c.lifecycleMu.Unlock()
	for _, h := range hooks {
		h()
	}
	close(c.done)
}

func (c *Conn) failAllPending(err error) {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for k, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, k)
	}
	c.mu.Unlock()
	for _, call := range calls {
		c.resolveCall(call, replyResult{err: err})
	}
}

func (c *Conn) resolveCall(call *pendingCall, res replyResult) {
	if call.stream != nil {
		if res.err != nil {
			call.stream <- StreamItem{Err: res.err}
		}
		close(call.stream)
		return
	}
	call.reply <- res
}

// OnEvent registers a handler for EVENT frames on (service, name).
func (c *Conn) OnEvent(service, name string, fn func(data json.RawMessage)) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	key := eventKey(service, name)
	c.events[key] = append(c.events[key], fn)
}

func eventKey(service, name string) pendingKey {
	return pendingKey{service: service, id: int64(hashName(name))}
}

func hashName(name string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return h
}

// Emit sends an EVENT frame.
func (c *Conn) Emit(service, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	n := name
	f := &Frame{Type: EVENT, Service: service, Name: &n, Data: raw}
	return c.writeFrame(f)
}

// Request sends a REQUEST frame and blocks for its single-value reply.
func (c *Conn) Request(service, name string, args ...any) (json.RawMessage, error) {
	if c.destroyed.Load() {
		return nil, collaberrors.NewDisconnected("rpc", "Request")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	data, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{reply: make(chan replyResult, 1)}
	key := pendingKey{service: service, id: id}
	c.mu.Lock()
	c.pending[key] = call
	c.mu.Unlock()

	n := name
	if err := c.writeFrame(&Frame{Type: REQUEST, Service: service, ID: id, Name: &n, Data: data}); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, collaberrors.NewDisconnected("rpc", "Request")
	}

	res := <-call.reply
	return res.data, res.err
}

// RequestStream sends a REQUEST frame expecting a REPLY_STREAM followed by
// STREAM_OUTPUT_DATA/STREAM_OUTPUT_END frames.
func (c *Conn) RequestStream(service, name string, args ...any) (<-chan StreamItem, error) {
	if c.destroyed.Load() {
		return nil, collaberrors.NewDisconnected("rpc", "RequestStream")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	data, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{stream: make(chan StreamItem, 16)}
	key := pendingKey{service: service, id: id}
	c.mu.Lock()
	c.pending[key] = call
	c.mu.Unlock()

	n := name
	if err := c.writeFrame(&Frame{Type: REQUEST, Service: service, ID: id, Name: &n, Data: data}); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, collaberrors.NewDisconnected("rpc", "RequestStream")
	}
	return call.stream, nil
}

// writeFrame wraps transport.WriteFrame, counting outbound frames by kind.
func (c *Conn) writeFrame(f *Frame) error {
	metrics.RPCFramesTotal.WithLabelValues(f.Type.String(), "out").Inc()
	return c.transport.WriteFrame(f)
}

func marshalArgs(args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return json.Marshal(args)
}

func (c *Conn) readLoop() {
	for {
		f, err := c.transport.ReadFrame()
		if err != nil {
			c.failAllPending(collaberrors.NewDisconnected("rpc", "readLoop"))
			c.fireDisconnect(err)
			return
		}
		if verr := f.Validate(); verr != nil {
			logger.Warn("rpc: invalid frame, disconnecting", "error", verr, "data", logger.RedactPayload(f.Data))
			_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(verr)})
			c.Destroy()
			return
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f *Frame) {
	metrics.RPCFramesTotal.WithLabelValues(f.Type.String(), "in").Inc()
	switch f.Type {
	case EVENT:
		c.dispatchEvent(f)
	case REQUEST:
		c.dispatchRequest(f)
	case REPLY_VALUE:
		c.completeReply(f, replyResult{data: f.Data})
	case REPLY_ERROR:
		var payload ErrorPayload
		_ = json.Unmarshal(f.Data, &payload)
		c.completeReply(f, replyResult{err: reconstructErr(payload)})
	case REPLY_STREAM:
		// the pendingCall is already stream-shaped; nothing to deliver yet.
	case STREAM_OUTPUT_DATA:
		c.deliverStream(f, StreamItem{Data: f.Data})
	case STREAM_OUTPUT_END:
		c.endStream(f)
	case STREAM_INPUT_DATA, STREAM_INPUT_END:
		// server-bound input streaming is not exercised by any collabkit
		// service; frames are accepted but otherwise ignored.
	}
}

func (c *Conn) dispatchEvent(f *Frame) {
	if f.Name == nil {
		return
	}
	c.eventMu.RLock()
	handlers := append([]func(json.RawMessage){}, c.events[eventKey(f.Service, *f.Name)]...)
	c.eventMu.RUnlock()
	for _, h := range handlers {
		h(f.Data)
	}
}

func (c *Conn) dispatchRequest(f *Frame) {
	if f.Name == nil {
		return
	}
	var argv []json.RawMessage
	_ = json.Unmarshal(f.Data, &argv)

	h, streamH, err := c.registry.lookupEither(f.Service, *f.Name)
	if err != nil {
		_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(err)})
		return
	}

	if streamH != nil {
		ch, err := streamH(argv)
		if err != nil {
			_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(err)})
			return
		}
		_ = c.writeFrame(&Frame{Type: REPLY_STREAM, Service: f.Service, ID: f.ID})
		go func() {
			for item := range ch {
				if item.Err != nil {
					_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(item.Err)})
					return
				}
				_ = c.writeFrame(&Frame{Type: STREAM_OUTPUT_DATA, Service: f.Service, ID: f.ID, Data: item.Data})
			}
			_ = c.writeFrame(&Frame{Type: STREAM_OUTPUT_END, Service: f.Service, ID: f.ID, Data: json.RawMessage(`true`)})
		}()
		return
	}

	result, err := h(argv)
	if err != nil {
		_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(err)})
		return
	}
	data, merr := json.Marshal(result)
	if merr != nil {
		_ = c.writeFrame(&Frame{Type: REPLY_ERROR, Service: f.Service, ID: f.ID, Data: mustMarshalErr(merr)})
		return
	}
	_ = c.writeFrame(&Frame{Type: REPLY_VALUE, Service: f.Service, ID: f.ID, Data: data})
}

// completeReply matches a REPLY_VALUE/REPLY_ERROR frame to its pending
// call. A reply for an id with no pending call (already completed, or
// never issued) is a duplicate/protocol violation and disconnects.
func (c *Conn) completeReply(f *Frame, res replyResult) {
	key := pendingKey{service: f.Service, id: f.ID}
	c.mu.Lock()
	call, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		logger.Warn("rpc: reply for unknown or already-completed request, disconnecting", "service", f.Service, "id", f.ID)
		c.Destroy()
		return
	}
	c.resolveCall(call, res)
}

func (c *Conn) deliverStream(f *Frame, item StreamItem) {
	key := pendingKey{service: f.Service, id: f.ID}
	c.mu.Lock()
	call, ok := c.pending[key]
	c.mu.Unlock()
	if !ok || call.stream == nil {
		return
	}
	call.stream <- item
}

func (c *Conn) endStream(f *Frame) {
	key := pendingKey{service: f.Service, id: f.ID}
	c.mu.Lock()
	call, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok || call.stream == nil {
		return
	}
	close(call.stream)
}

func mustMarshalErr(err error) json.RawMessage {
	payload := ErrorPayload{Kind: errKind(err), Message: err.Error()}
	data, merr := json.Marshal(payload)
	if merr != nil {
		return json.RawMessage(`{"kind":"Assert","message":"failed to marshal error"}`)
	}
	return data
}

// reconstructErr rebuilds a typed error from a REPLY_ERROR payload so a
// caller can still branch on errors.As across the wire.
func reconstructErr(payload ErrorPayload) error {
	switch payload.Kind {
	case "InvalidEntity":
		return collaberrors.NewInvalidEntity("rpc", "remote", "remote", nil, payload.Message)
	case "AlreadyExists":
		return collaberrors.NewAlreadyExists("rpc", "remote", "remote", nil, payload.Message)
	case "NotFound":
		return collaberrors.NewNotFound("rpc", "remote", "remote", payload.Message)
	case "EntityTooLarge":
		return collaberrors.NewEntityTooLarge("rpc", "remote", "remote", 0, 0)
	case "TypeError":
		return collaberrors.NewTypeError("rpc", "remote", payload.Message)
	case "Auth":
		return collaberrors.NewAuth("rpc", "remote", payload.Message)
	case "Disconnected":
		return collaberrors.NewDisconnected("rpc", "remote")
	default:
		return collaberrors.NewAssert("rpc", "remote", payload.Message)
	}
}

func errKind(err error) string {
	switch err.(type) {
	case *collaberrors.InvalidEntity:
		return "InvalidEntity"
	case *collaberrors.AlreadyExists:
		return "AlreadyExists"
	case *collaberrors.NotFound:
		return "NotFound"
	case *collaberrors.EntityTooLarge:
		return "EntityTooLarge"
	case *collaberrors.TypeError:
		return "TypeError"
	case *collaberrors.Auth:
		return "Auth"
	case *collaberrors.Disconnected:
		return "Disconnected"
	case *collaberrors.Assert:
		return "Assert"
	default:
		return "Assert"
	}
}
