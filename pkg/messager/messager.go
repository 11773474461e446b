// Package messager frames messages over a single stream connection. Each
// frame is a big-endian u32 payload length followed by the CBOR-encoded
// envelope. Frames are delivered to the read callback in stream order.
package messager

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cs706/saber/pkg/saber"
)

const (
	headerSize = 4
	// MaxFrameSize bounds a single payload. Anything larger is stream
	// corruption and tears the connection down.
	MaxFrameSize = 64 << 20
)

var ErrFrameTooLarge = errors.New("messager: frame exceeds maximum size")

// Messager owns the framing on one connection. Sends from multiple goroutines
// are serialized; the wire sees them in the order the lock was acquired.
type Messager struct {
	conn net.Conn

	mu sync.Mutex
	w  *bufio.Writer
}

func New(conn net.Conn) *Messager {
	return &Messager{
		conn: conn,
		w:    bufio.NewWriter(conn),
	}
}

// Send frames and writes one message, flushing it to the wire.
func (m *Messager) Send(msg *saber.Message) error {
	return m.SendBatch([]*saber.Message{msg})
}

// SendBatch frames several messages and flushes them with a single write,
// preserving slice order on the wire.
func (m *Messager) SendBatch(msgs []*saber.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		payload, err := saber.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding message: %w", err)
		}
		if len(payload) > MaxFrameSize {
			return ErrFrameTooLarge
		}
		var header [headerSize]byte
		binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
		if _, err := m.w.Write(header[:]); err != nil {
			return err
		}
		if _, err := m.w.Write(payload); err != nil {
			return err
		}
	}
	return m.w.Flush()
}

// ReadLoop reads frames until the connection fails or the handler returns
// false. It returns nil on a clean EOF.
func (m *Messager) ReadLoop(handle func(*saber.Message) bool) error {
	r := bufio.NewReader(m.conn)
	for {
		var header [headerSize]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		n := binary.BigEndian.Uint32(header[:])
		if n > MaxFrameSize {
			return ErrFrameTooLarge
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		msg := &saber.Message{}
		if err := saber.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		if !handle(msg) {
			return nil
		}
	}
}

// Close tears the underlying connection down, unblocking any ReadLoop.
func (m *Messager) Close() error {
	return m.conn.Close()
}
