package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Multipart envelope: one fixed header followed by FrameCount length-prefixed
// frames. A frame list is always written and read as a whole.
const (
	Magic          uint32 = 0x4E445731 // "NDW1"
	Version        uint16 = 1
	FixedHeaderLen uint16 = 20
	frameLenSize          = 4
)

var (
	ErrShortHeader         = errors.New("frame: short fixed header")
	ErrInvalidMagic        = errors.New("frame: invalid magic")
	ErrUnsupportedVersion  = errors.New("frame: unsupported version")
	ErrInvalidHeaderLen    = errors.New("frame: invalid header length")
	ErrTooManyFrames       = errors.New("frame: too many frames")
	ErrPayloadTooLarge     = errors.New("frame: payload too large")
	ErrTruncated           = errors.New("frame: truncated payload")
	ErrFrameLengthMismatch = errors.New("frame: frame lengths disagree with payload length")
)

// Header is the fixed wire header.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	FrameCount uint32
	PayloadLen uint64
}

// Limits constrains envelope decode/encode memory use.
type Limits struct {
	MaxFrames       uint32
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrames:       64,
		MaxPayloadBytes: 256 * 1024 * 1024,
	}
}

// PayloadLen is the encoded size of frames excluding the fixed header.
func PayloadLen(frames [][]byte) uint64 {
	var n uint64
	for _, f := range frames {
		n += frameLenSize + uint64(len(f))
	}
	return n
}

// CheckLimits reports whether frames fit in one envelope under limits.
func CheckLimits(frames [][]byte, limits Limits) error {
	if uint64(len(frames)) > uint64(limits.MaxFrames) {
		return fmt.Errorf("%w: %d frames, limit %d", ErrTooManyFrames, len(frames), limits.MaxFrames)
	}
	if n := PayloadLen(frames); n > limits.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, n, limits.MaxPayloadBytes)
	}
	for i, f := range frames {
		if uint64(len(f)) > uint64(^uint32(0)) {
			return fmt.Errorf("%w: frame %d is %d bytes", ErrPayloadTooLarge, i, len(f))
		}
	}
	return nil
}

func WriteMessage(w io.Writer, frames [][]byte, limits Limits) error {
	if err := CheckLimits(frames, limits); err != nil {
		return err
	}
	payloadLen := PayloadLen(frames)

	hb := EncodeHeader(Header{
		Magic:      Magic,
		Version:    Version,
		HeaderLen:  FixedHeaderLen,
		FrameCount: uint32(len(frames)),
		PayloadLen: payloadLen,
	})
	if _, err := w.Write(hb); err != nil {
		return err
	}
	var lenBuf [frameLenSize]byte
	for _, f := range frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

func ReadMessage(r io.Reader, limits Limits) ([][]byte, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		// io.EOF passes through so callers can tell a clean close.
		return nil, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return nil, err
	}
	if h.FrameCount > limits.MaxFrames {
		return nil, ErrTooManyFrames
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	if h.PayloadLen < uint64(h.FrameCount)*frameLenSize {
		return nil, ErrFrameLengthMismatch
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTruncated
	}
	return splitFrames(payload, h.FrameCount)
}

// EncodeMessage renders frames as a single envelope.
func EncodeMessage(frames [][]byte, limits Limits) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(FixedHeaderLen) + int(PayloadLen(frames)))
	if err := WriteMessage(&buf, frames, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage parses exactly one envelope from b.
func DecodeMessage(b []byte, limits Limits) ([][]byte, error) {
	r := bytes.NewReader(b)
	frames, err := ReadMessage(r, limits)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFrameLengthMismatch, r.Len())
	}
	return frames, nil
}

func splitFrames(payload []byte, count uint32) ([][]byte, error) {
	frames := make([][]byte, 0, count)
	off := 0
	for i := uint32(0); i < count; i++ {
		if len(payload)-off < frameLenSize {
			return nil, ErrFrameLengthMismatch
		}
		l := binary.BigEndian.Uint32(payload[off : off+frameLenSize])
		off += frameLenSize
		if uint64(len(payload)-off) < uint64(l) {
			return nil, ErrFrameLengthMismatch
		}
		end := off + int(l)
		frames = append(frames, payload[off:end:end])
		off = end
	}
	if off != len(payload) {
		return nil, ErrFrameLengthMismatch
	}
	return frames, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint32(buf[8:12], h.FrameCount)
	binary.BigEndian.PutUint64(buf[12:20], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		FrameCount: binary.BigEndian.Uint32(b[8:12]),
		PayloadLen: binary.BigEndian.Uint64(b[12:20]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	if h.HeaderLen != FixedHeaderLen {
		return Header{}, ErrInvalidHeaderLen
	}
	return h, nil
}
