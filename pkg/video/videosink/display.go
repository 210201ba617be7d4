package videosink

import (
	"sync"

	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

// Surface is anything which can present a frame, usually
// a videobackend.Display window.
type Surface interface {
	Show(videoframe.NoCloser) error
	Close() error
}

type Display struct {
	mu      sync.Mutex
	surface Surface
	bound   bool
	shown   uint64
}

func NewDisplay(surface Surface) *Display {
	return &Display{surface: surface}
}

func (d *Display) Bind(videoframe.Dimensions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.surface == nil {
		return xerror.New("no display surface available")
	}
	d.bound = true
	return nil
}

func (d *Display) Emit(f videoframe.Stamped) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bound {
		return xerror.New("display is not bound")
	}
	if err := d.surface.Show(f.Frame); err != nil {
		return err
	}
	d.shown++
	return nil
}

// Unbind leaves the surface open, so the last delayed frame stays
// on screen while playback is stopped.
func (d *Display) Unbind() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound = false
	return nil
}

func (d *Display) Shown() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Close releases the surface for good.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound = false
	if d.surface == nil {
		return nil
	}
	return d.surface.Close()
}
