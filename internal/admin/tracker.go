package admin

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ndwire/internal/stream"
	"github.com/google/uuid"
)

// StreamInfo summarizes one stream seen by a sink.
type StreamInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	DType     string    `json:"dtype"`
	Shape     []int     `json:"shape"`
	Messages  uint64    `json:"messages"`
	Bytes     uint64    `json:"bytes"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Tracker keeps per-stream counters. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]*StreamInfo
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{streams: make(map[uuid.UUID]*StreamInfo), now: time.Now}
}

func (t *Tracker) Observe(msg stream.Message) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.streams[msg.StreamID]
	if !ok {
		info = &StreamInfo{ID: msg.StreamID, FirstSeen: now}
		t.streams[msg.StreamID] = info
	}
	info.Name = msg.Name
	info.DType = string(msg.Array.DType)
	info.Shape = slices.Clone(msg.Array.Shape)
	info.Messages++
	info.Bytes += uint64(msg.Array.Nbytes())
	info.LastSeen = now
}

// Streams returns a snapshot ordered by name, then id.
func (t *Tracker) Streams() []StreamInfo {
	t.mu.RLock()
	out := make([]StreamInfo, 0, len(t.streams))
	for _, info := range t.streams {
		cp := *info
		cp.Shape = slices.Clone(info.Shape)
		out = append(out, cp)
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b StreamInfo) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.streams)
}
