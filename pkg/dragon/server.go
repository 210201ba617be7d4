package dragon

import (
	"context"
	"sync"

	"github.com/tauraamui/dragondelay/pkg/camera"
	"github.com/tauraamui/dragondelay/pkg/configdef"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/timeshift"
	"github.com/tauraamui/dragondelay/pkg/video/videobackend"
	"github.com/tauraamui/dragondelay/pkg/video/videosink"
	"github.com/tauraamui/dragondelay/pkg/video/videostorage"
	"github.com/tauraamui/xerror"
)

// Server owns one delayed playback pipeline, from camera to sinks,
// built from the resolved configuration.
type Server struct {
	backend videobackend.Backend

	mu        sync.Mutex
	ctx       context.Context
	config    configdef.Values
	scheduler *timeshift.Scheduler
	display   *videosink.Display
	recorder  *videosink.Recorder
	archive   *videosink.Archive
	storage   videostorage.Storage
	status    string

	shutdownOnce sync.Once
	shutdownDone chan interface{}
}

func NewServer(resolver configdef.Resolver, backend videobackend.Backend) (*Server, error) {
	cfg, err := resolver.Resolve()
	if err != nil {
		return nil, xerror.Errorf("unable to load configuration: %w", err)
	}
	if cfg.Debug {
		log.SetLevel("debug")
		log.Debug("Debug logging enabled from configuration")
	}

	s := Server{
		backend:      backend,
		ctx:          context.Background(),
		config:       cfg,
		shutdownDone: make(chan interface{}),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Server) setup() error {
	sinks, err := s.setupSinks()
	if err != nil {
		return err
	}

	s.scheduler = timeshift.New(timeshift.Settings{
		Title:           s.config.Camera.Title,
		Open:            s.openCamera,
		Sink:            videosink.Multi(sinks...),
		MaxFrames:       s.config.MaxFrames,
		MinTickInterval: s.config.MinTickIntervalMs,
		RefreshRate:     s.config.RefreshRate,
		OnStatus:        s.updateStatus,
	})
	s.scheduler.SetDelay(s.config.DelaySeconds)
	return nil
}

func (s *Server) setupSinks() ([]timeshift.Sink, error) {
	var sinks []timeshift.Sink
	out := s.config.Output

	if out.Display {
		s.display = videosink.NewDisplay(s.backend.NewDisplay(s.config.Camera.Title))
		sinks = append(sinks, s.display)
	}

	if len(out.PersistLocation) > 0 {
		recorder, err := videosink.NewRecorder(videosink.RecorderSettings{
			PersistLocation: out.PersistLocation,
			FPS:             out.FPS,
			SecondsPerClip:  out.SecondsPerClip,
			Writer:          s.backend.NewWriter(),
		})
		if err != nil {
			return nil, xerror.Errorf("unable to setup clip recording: %w", err)
		}
		log.Info("Recording delayed footage to: %s", out.PersistLocation)
		s.recorder = recorder
		sinks = append(sinks, recorder)
	}

	if len(out.ArchivePath) > 0 {
		storage, err := videostorage.NewStorage(out.ArchivePath)
		if err != nil {
			return nil, xerror.Errorf("unable to setup frame archive: %w", err)
		}
		log.Info("Archiving delayed frames to: %s", out.ArchivePath)
		s.storage = storage
		s.archive = videosink.NewArchive(storage, out.ArchiveBatch)
		sinks = append(sinks, s.archive)
	}

	if len(sinks) == 0 {
		log.Warn("No outputs configured, delayed frames will be discarded")
	}
	return sinks, nil
}

func (s *Server) openCamera(ctx context.Context) (camera.Connection, error) {
	s.mu.Lock()
	cam := s.config.Camera
	s.mu.Unlock()

	log.Info("Connecting to camera: [%s]...", cam.Title)
	conn, err := camera.ConnectWithCancel(ctx, cam.Title, cam.Address, camera.Settings{
		Width: cam.Width, Height: cam.Height,
	}, s.backend)
	if err != nil {
		return nil, err
	}
	log.Info("Connected successfully to camera: [%s]", cam.Title)
	return conn, nil
}

// Start begins delayed playback, ctx bounds connecting to the camera
// for this and every later restart from the keyboard.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.scheduler.Start(ctx)
}

func (s *Server) Stats() timeshift.Stats {
	return s.scheduler.Stats()
}

func (s *Server) Delay() float64 {
	return s.scheduler.Delay()
}

// Status is the most recent human readable playback status.
func (s *Server) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Server) updateStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
	log.Info("Status: %s", msg)
}

// ApplyConfig takes reloaded values. The delay applies straight away,
// changes to the camera or outputs wait for a restart.
func (s *Server) ApplyConfig(values configdef.Values) {
	s.mu.Lock()
	current := s.config
	s.config.DelaySeconds = values.DelaySeconds
	s.mu.Unlock()

	if values.DelaySeconds != current.DelaySeconds {
		s.scheduler.SetDelay(values.DelaySeconds)
	}
	if values.Camera != current.Camera || values.Output != current.Output ||
		values.MaxFrames != current.MaxFrames || values.RefreshRate != current.RefreshRate ||
		values.MinTickIntervalMs != current.MinTickIntervalMs {
		log.Warn("Config changes other than delay_seconds take effect after restart")
	}
}

func (s *Server) shutdown() {
	log.Info("Shutting down delayed playback...")
	s.scheduler.Stop()

	if s.display != nil {
		if err := s.display.Close(); err != nil {
			log.Error("Unable to close display: %v", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			log.Error("Unable to close frame archive: %v", err)
		}
	}
	close(s.shutdownDone)
}

func (s *Server) Shutdown() chan interface{} {
	s.shutdownOnce.Do(s.shutdown)
	return s.shutdownDone
}
