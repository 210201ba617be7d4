package framering

import (
	"errors"
	"sort"

	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
)

const DefaultMaxFrames = 300

var ErrOutOfOrder = errors.New("frame timestamp is older than the newest buffered frame")

// Buffer keeps the most recent frames in capture order. Once full,
// each push evicts and closes exactly one frame, the oldest.
type Buffer struct {
	slots   []videoframe.Stamped
	head    int
	count   int
	evicted uint64
}

func New(max int) *Buffer {
	if max < 1 {
		max = DefaultMaxFrames
	}
	return &Buffer{slots: make([]videoframe.Stamped, max)}
}

func (b *Buffer) Len() int { return b.count }

func (b *Buffer) Cap() int { return len(b.slots) }

func (b *Buffer) Evicted() uint64 { return b.evicted }

func (b *Buffer) at(i int) videoframe.Stamped {
	return b.slots[(b.head+i)%len(b.slots)]
}

// Push appends f at the tail. A frame captured before the current
// tail is rejected with ErrOutOfOrder and the buffer is left as it was.
func (b *Buffer) Push(f videoframe.Stamped) error {
	if b.count > 0 && f.Timestamp < b.at(b.count-1).Timestamp {
		return ErrOutOfOrder
	}

	size := len(b.slots)
	if b.count < size {
		b.slots[(b.head+b.count)%size] = f
		b.count++
		return nil
	}

	oldest := b.slots[b.head]
	b.slots[b.head] = f
	b.head = (b.head + 1) % size
	b.evicted++
	oldest.Close()
	return nil
}

// FindAtOrAfter returns the oldest frame stamped at or after target.
// When target is newer than everything buffered the newest frame is
// returned instead. It reports false only when the buffer is empty.
func (b *Buffer) FindAtOrAfter(target float64) (videoframe.Stamped, bool) {
	if b.count == 0 {
		return videoframe.Stamped{}, false
	}

	i := sort.Search(b.count, func(i int) bool {
		return b.at(i).Timestamp >= target
	})
	if i == b.count {
		i = b.count - 1
	}
	return b.at(i), true
}

func (b *Buffer) Oldest() (videoframe.Stamped, bool) {
	if b.count == 0 {
		return videoframe.Stamped{}, false
	}
	return b.at(0), true
}

func (b *Buffer) Newest() (videoframe.Stamped, bool) {
	if b.count == 0 {
		return videoframe.Stamped{}, false
	}
	return b.at(b.count - 1), true
}

// Span is the time in milliseconds covered by the buffered frames.
func (b *Buffer) Span() float64 {
	if b.count < 2 {
		return 0
	}
	return b.at(b.count-1).Timestamp - b.at(0).Timestamp
}

// Clear closes and drops every buffered frame.
func (b *Buffer) Clear() {
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.slots)
		b.slots[idx].Close()
		b.slots[idx] = videoframe.Stamped{}
	}
	b.head = 0
	b.count = 0
}
