package process

import (
	"context"

	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/video/videoclip"
)

type persistClipProcess struct {
	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan interface{}
	clips    chan videoclip.Clip
	writer   videoclip.Writer
}

// NewPersistClipProcess writes every clip received on clips with writer.
// Clips still queued when the process is stopped are written before Wait returns.
func NewPersistClipProcess(clips chan videoclip.Clip, writer videoclip.Writer) Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &persistClipProcess{
		ctx: ctx, cancel: cancel, clips: clips, writer: writer, stopping: make(chan interface{}),
	}
}

func (proc *persistClipProcess) Setup() Process { return proc }

func (proc *persistClipProcess) Start() {
	go proc.run()
}

func (proc *persistClipProcess) run() {
	defer close(proc.stopping)
	for {
		select {
		case <-proc.ctx.Done():
			proc.drain()
			return
		case clip := <-proc.clips:
			persist(proc.writer, clip)
		}
	}
}

func (proc *persistClipProcess) drain() {
	for {
		select {
		case clip := <-proc.clips:
			persist(proc.writer, clip)
		default:
			return
		}
	}
}

func persist(writer videoclip.Writer, clip videoclip.Clip) {
	defer clip.Close()
	if err := writer.Write(clip); err != nil {
		log.Error("Unable to write clip [%s] to disk: %v", clip.FileName(), err)
		return
	}
	log.Debug("Wrote clip [%s] to disk", clip.FileName())
}

func (proc *persistClipProcess) Stop() {
	proc.cancel()
}

func (proc *persistClipProcess) Wait() {
	<-proc.stopping
}
