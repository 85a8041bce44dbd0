package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/danmuck/ndwire/internal/observability"
	"github.com/danmuck/ndwire/internal/protocol/frame"
)

var (
	ErrDataDirRequired = errors.New("store: data dir required")
	ErrInvalidStream   = errors.New("store: invalid stream name")
	ErrClosed          = errors.New("store: closed")
)

const recordPrefix = "rec/"

// Options configures the recorder.
type Options struct {
	DataDir string
	// Sync forces a WAL fsync on every append.
	Sync bool
	// Limits bounds stored envelopes. Zero fields take frame.DefaultLimits.
	// Recorders fed by a socket should share its session limits.
	Limits frame.Limits
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// Recorder appends frame lists per stream.
type Recorder struct {
	db     *pebble.DB
	write  *pebble.WriteOptions
	limits frame.Limits

	mu   sync.Mutex
	seqs map[string]uint64
}

func Open(opts Options) (*Recorder, error) {
	if strings.TrimSpace(opts.DataDir) == "" {
		return nil, ErrDataDirRequired
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	write := pebble.NoSync
	if opts.Sync {
		write = pebble.Sync
	}
	limits := opts.Limits
	if limits.MaxFrames == 0 {
		limits.MaxFrames = frame.DefaultLimits().MaxFrames
	}
	if limits.MaxPayloadBytes == 0 {
		limits.MaxPayloadBytes = frame.DefaultLimits().MaxPayloadBytes
	}
	return &Recorder{db: db, write: write, limits: limits, seqs: make(map[string]uint64)}, nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Append stores frames as the next record of stream and returns its sequence.
func (r *Recorder) Append(stream string, frames [][]byte) (uint64, error) {
	if err := validStream(stream); err != nil {
		return 0, err
	}
	value, err := frame.EncodeMessage(frames, r.limits)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return 0, ErrClosed
	}
	seq, ok := r.seqs[stream]
	if !ok {
		last, found, err := r.lastSeq(stream)
		if err != nil {
			return 0, err
		}
		if found {
			seq = last + 1
		}
	}
	if err := r.db.Set(recordKey(stream, seq), value, r.write); err != nil {
		return 0, err
	}
	r.seqs[stream] = seq + 1
	observability.RecordRecorderAppend(stream)
	return seq, nil
}

// Scan calls fn for every record of stream in sequence order. Returning an
// error from fn stops the scan and returns that error.
func (r *Recorder) Scan(stream string, fn func(seq uint64, frames [][]byte) error) error {
	if err := validStream(stream); err != nil {
		return err
	}
	r.mu.Lock()
	db := r.db
	r.mu.Unlock()
	if db == nil {
		return ErrClosed
	}

	prefix := streamPrefix(stream)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		seq := binary.BigEndian.Uint64(iter.Key()[len(prefix):])
		frames, err := frame.DecodeMessage(bytes.Clone(iter.Value()), r.limits)
		if err != nil {
			return fmt.Errorf("store: record %s/%d: %w", stream, seq, err)
		}
		if err := fn(seq, frames); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of records stored for stream.
func (r *Recorder) Count(stream string) (int, error) {
	n := 0
	err := r.Scan(stream, func(uint64, [][]byte) error {
		n++
		return nil
	})
	return n, err
}

// Streams lists the recorded stream names in key order.
func (r *Recorder) Streams() ([]string, error) {
	r.mu.Lock()
	db := r.db
	r.mu.Unlock()
	if db == nil {
		return nil, ErrClosed
	}

	lower := []byte(recordPrefix)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for valid := iter.First(); valid; {
		rest := iter.Key()[len(recordPrefix):]
		name := string(rest[:len(rest)-8-1])
		names = append(names, name)
		valid = iter.SeekGE(prefixEnd(streamPrefix(name)))
	}
	return names, iter.Error()
}

func (r *Recorder) lastSeq(stream string) (uint64, bool, error) {
	prefix := streamPrefix(stream)
	iter, err := r.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, false, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()[len(prefix):]), true, nil
}

func validStream(stream string) error {
	if stream == "" || strings.ContainsRune(stream, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidStream, stream)
	}
	return nil
}

func streamPrefix(stream string) []byte {
	return []byte(recordPrefix + stream + "/")
}

func recordKey(stream string, seq uint64) []byte {
	key := streamPrefix(stream)
	return binary.BigEndian.AppendUint64(key, seq)
}

// prefixEnd is the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
