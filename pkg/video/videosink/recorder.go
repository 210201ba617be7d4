package videosink

import (
	"sync"

	"github.com/tauraamui/dragondelay/pkg/dragon/process"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/video/videoclip"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const defaultClipQueue = 3

type RecorderSettings struct {
	PersistLocation string
	FPS             int
	SecondsPerClip  int
	Writer          videoclip.Writer
	// QueuedClips is how many finished clips may wait for the writer
	// before new ones are dropped.
	QueuedClips int
}

// Recorder saves the delayed footage as clips of FPS*SecondsPerClip frames.
// Frames are sampled at FPS by capture time, so clips play back at the
// speed they were captured whatever rate frames are emitted at.
type Recorder struct {
	settings      RecorderSettings
	framesPerClip int
	frameInterval float64

	mu      sync.Mutex
	clips   chan videoclip.Clip
	current videoclip.Clip
	persist process.Process
	next    float64
	sampled bool
	dropped uint64
	skipped uint64
}

func NewRecorder(settings RecorderSettings) (*Recorder, error) {
	if settings.Writer == nil {
		return nil, xerror.New("recorder requires a clip writer")
	}
	if len(settings.PersistLocation) == 0 {
		return nil, xerror.New("recorder requires a persist location")
	}
	if settings.FPS < 1 || settings.SecondsPerClip < 1 {
		return nil, xerror.Errorf("invalid clip length of %d fps for %d seconds", settings.FPS, settings.SecondsPerClip)
	}
	if settings.QueuedClips < 1 {
		settings.QueuedClips = defaultClipQueue
	}
	return &Recorder{
		settings:      settings,
		framesPerClip: settings.FPS * settings.SecondsPerClip,
		frameInterval: 1000 / float64(settings.FPS),
	}, nil
}

func (r *Recorder) Bind(videoframe.Dimensions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persist != nil {
		return xerror.New("recorder is already bound")
	}

	r.clips = make(chan videoclip.Clip, r.settings.QueuedClips)
	r.persist = process.NewPersistClipProcess(r.clips, r.settings.Writer)
	r.persist.Setup().Start()
	r.current = r.newClip()
	r.sampled = false
	return nil
}

func (r *Recorder) Emit(f videoframe.Stamped) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return xerror.New("recorder is not bound")
	}
	if !r.due(f.Timestamp) {
		r.skipped++
		return nil
	}

	r.current.AppendFrame(f.Frame.Clone())
	if r.current.Len() >= r.framesPerClip {
		r.handOff()
		r.current = r.newClip()
	}
	return nil
}

// Unbind hands over the partially filled clip and waits for every
// queued clip to be written.
func (r *Recorder) Unbind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persist == nil {
		return nil
	}

	if r.current.Len() > 0 {
		r.handOff()
	} else {
		r.current.Close()
	}
	r.current = nil

	r.persist.Stop()
	r.persist.Wait()
	r.persist = nil
	return nil
}

func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Skipped counts emitted frames which fell between two recorded samples.
func (r *Recorder) Skipped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// due reports whether a frame captured at ts is the next sample. Samples
// follow a fixed schedule, after a gap the schedule restarts from ts.
func (r *Recorder) due(ts float64) bool {
	if r.sampled && ts < r.next {
		return false
	}
	if !r.sampled || ts >= r.next+r.frameInterval {
		r.next = ts
	}
	r.next += r.frameInterval
	r.sampled = true
	return true
}

func (r *Recorder) newClip() videoclip.Clip {
	return videoclip.New(r.settings.PersistLocation, r.settings.FPS)
}

func (r *Recorder) handOff() {
	select {
	case r.clips <- r.current:
	default:
		r.dropped++
		log.Warn("Clip writer is behind, dropping clip [%s]", r.current.FileName())
		r.current.Close()
	}
}
