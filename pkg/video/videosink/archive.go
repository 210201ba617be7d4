package videosink

import (
	"sync"
	"time"

	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/dragondelay/pkg/video/videostorage"
	"github.com/tauraamui/xerror"
)

const DefaultArchiveBatch = 30

var Now = func() time.Time {
	return time.Now()
}

// Archive collects delayed frames into batches and saves each
// full batch to storage keyed by wall clock milliseconds.
type Archive struct {
	store videostorage.Storage
	batch int

	mu      sync.Mutex
	pending []videoframe.Frame
	saved   int
}

func NewArchive(store videostorage.Storage, batch int) *Archive {
	if batch < 1 {
		batch = DefaultArchiveBatch
	}
	return &Archive{store: store, batch: batch}
}

func (a *Archive) Bind(videoframe.Dimensions) error {
	if a.store == nil {
		return xerror.New("no frame archive available")
	}
	return nil
}

func (a *Archive) Emit(f videoframe.Stamped) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, f.Frame.Clone())
	if len(a.pending) < a.batch {
		return nil
	}
	return a.flush()
}

// Unbind saves whatever is left of the current batch.
func (a *Archive) Unbind() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flush()
}

// Saved is the number of batches written.
func (a *Archive) Saved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved
}

func (a *Archive) flush() error {
	if len(a.pending) == 0 {
		return nil
	}

	frames := make([]videoframe.NoCloser, len(a.pending))
	for i, f := range a.pending {
		frames[i] = f
	}
	err := a.store.SaveFrames(Now().UnixNano()/int64(time.Millisecond), frames)

	for _, f := range a.pending {
		f.Close()
	}
	a.pending = nil
	if err != nil {
		return xerror.Errorf("unable to archive frames: %w", err)
	}
	a.saved++
	return nil
}
