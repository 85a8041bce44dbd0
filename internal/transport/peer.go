package transport

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/danmuck/ndwire/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

// peer is one connected remote end. Writes are serialized per peer; reads
// happen from a single goroutine owned by the socket.
type peer interface {
	WriteMessage(frames [][]byte) error
	ReadMessage() ([][]byte, error)
	Close() error
	RemoteAddr() string
}

type tcpPeer struct {
	conn         net.Conn
	r            *bufio.Reader
	limits       frame.Limits
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu sync.Mutex
	w  *bufio.Writer
}

func newTCPPeer(conn net.Conn, limits frame.Limits, readTimeout, writeTimeout time.Duration) *tcpPeer {
	return &tcpPeer{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		limits:       limits,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (p *tcpPeer) WriteMessage(frames [][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	if err := frame.WriteMessage(p.w, frames, p.limits); err != nil {
		return err
	}
	return p.w.Flush()
}

func (p *tcpPeer) ReadMessage() ([][]byte, error) {
	if p.readTimeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.readTimeout)); err != nil {
			return nil, err
		}
	}
	return frame.ReadMessage(p.r, p.limits)
}

func (p *tcpPeer) Close() error {
	return p.conn.Close()
}

func (p *tcpPeer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

type wsPeer struct {
	conn         *websocket.Conn
	limits       frame.Limits
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu sync.Mutex
}

func newWSPeer(conn *websocket.Conn, limits frame.Limits, readTimeout, writeTimeout time.Duration) *wsPeer {
	conn.SetReadLimit(int64(frame.FixedHeaderLen) + int64(limits.MaxPayloadBytes))
	return &wsPeer{
		conn:         conn,
		limits:       limits,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (p *wsPeer) WriteMessage(frames [][]byte) error {
	b, err := frame.EncodeMessage(frames, p.limits)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	return p.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (p *wsPeer) ReadMessage() ([][]byte, error) {
	for {
		if p.readTimeout > 0 {
			if err := p.conn.SetReadDeadline(time.Now().Add(p.readTimeout)); err != nil {
				return nil, err
			}
		}
		mt, b, err := p.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return frame.DecodeMessage(b, p.limits)
	}
}

func (p *wsPeer) Close() error {
	return p.conn.Close()
}

func (p *wsPeer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
