package voice

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irislabs/voice-gateway/internal/protocol"
)

// ErrSlowClient is returned by Send when the client has not drained the
// queue within the stall budget.
var ErrSlowClient = errors.New("outbound queue stalled")

// ErrWriterClosed is returned once the connection writer has shut down.
var ErrWriterClosed = errors.New("outbound writer closed")

var slowClientBudget = 2 * time.Second

// Conn is the slice of the websocket connection the writer needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

type outFrame struct {
	gen  uint64
	data []byte
}

// Outbound is the single writer for one connection. All producer
// goroutines enqueue binary frames here; only the writer goroutine
// touches the connection. Each frame carries the turn generation it was
// produced in, so a barge-in drops already-queued output by bumping the
// generation instead of racing the queue.
type Outbound struct {
	conn   Conn
	binary bool

	frames chan outFrame
	gen    atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewOutbound starts the writer goroutine. binary selects the wire
// encoding; false re-encodes every frame as its JSON envelope.
func NewOutbound(conn Conn, binary bool, capacity int) *Outbound {
	if capacity <= 0 {
		capacity = 64
	}
	o := &Outbound{
		conn:   conn,
		binary: binary,
		frames: make(chan outFrame, capacity),
		done:   make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// Generation returns the current turn generation.
func (o *Outbound) Generation() uint64 {
	return o.gen.Load()
}

// Bump invalidates every frame produced before now. Queued stale frames
// are skipped by the writer; in-flight producers holding the old
// generation get their sends dropped.
func (o *Outbound) Bump() uint64 {
	return o.gen.Add(1)
}

// Send enqueues a frame under the current generation.
func (o *Outbound) Send(frame []byte) error {
	return o.SendGen(o.gen.Load(), frame)
}

// SendGen enqueues a frame produced under a specific turn generation.
// Stale generations are dropped silently. A full queue that does not
// drain within the stall budget returns ErrSlowClient.
func (o *Outbound) SendGen(gen uint64, frame []byte) error {
	if gen != o.gen.Load() {
		return nil
	}

	select {
	case o.frames <- outFrame{gen: gen, data: frame}:
		return nil
	case <-o.done:
		return ErrWriterClosed
	default:
	}

	stall := time.NewTimer(slowClientBudget)
	defer stall.Stop()
	select {
	case o.frames <- outFrame{gen: gen, data: frame}:
		return nil
	case <-stall.C:
		return ErrSlowClient
	case <-o.done:
		return ErrWriterClosed
	}
}

// Close stops the writer and waits for it to exit. Frames already queued
// are flushed first so a final ERROR reaches the client before the close
// handshake.
func (o *Outbound) Close() {
	o.closeOnce.Do(func() { close(o.done) })
	o.wg.Wait()
}

func (o *Outbound) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			o.flush()
			return
		case f := <-o.frames:
			if f.gen != o.gen.Load() {
				continue
			}
			if err := o.write(f.data); err != nil {
				log.Printf("[voice] write failed, stopping writer: %v", err)
				o.closeOnce.Do(func() { close(o.done) })
				return
			}
		}
	}
}

func (o *Outbound) flush() {
	for {
		select {
		case f := <-o.frames:
			if f.gen != o.gen.Load() {
				continue
			}
			if err := o.write(f.data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (o *Outbound) write(frame []byte) error {
	if o.binary {
		return o.conn.WriteMessage(websocket.BinaryMessage, frame)
	}

	encoded, err := protocol.EncodeEnvelope(frame)
	if err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, encoded)
}
