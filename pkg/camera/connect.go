package camera

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tauraamui/dragondelay/pkg/video/videobackend"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

type Connection interface {
	UUID() string
	Title() string
	Ready() bool
	Read() (videoframe.Frame, error)
	Dimensions() videoframe.Dimensions
	IsOpen() bool
	IsClosing() bool
	Close() error
}

type connection struct {
	uuid      string
	backend   videobackend.Backend
	title     string
	sett      Settings
	mu        sync.Mutex
	isClosing bool
	vc        videobackend.Connection
}

func (c *connection) UUID() string {
	return c.uuid
}

func (c *connection) Title() string {
	return c.title
}

// Ready reports whether a frame can be read right now.
func (c *connection) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.isClosing && c.vc.IsOpen()
}

// Read decodes the current frame. The frame is closed again
// if decoding fails, the caller only ever owns complete frames.
func (c *connection) Read() (videoframe.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := c.backend.NewFrame()
	if err := c.vc.Read(frame); err != nil {
		frame.Close()
		return nil, xerror.Errorf("unable to read frame from camera [%s]: %w", c.title, err)
	}
	return frame, nil
}

func (c *connection) Dimensions() videoframe.Dimensions {
	return c.sett.Dimensions()
}

func (c *connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.IsOpen()
}

func (c *connection) IsClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosing
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isClosing = true
	return c.vc.Close()
}

func connect(ctx context.Context, title, addr string, settings Settings, backend videobackend.Backend) (Connection, error) {
	vc, err := backend.Connect(ctx, addr, settings.Dimensions())
	if err != nil {
		return nil, xerror.Errorf("unable to connect to camera [%s]: %w", title, err)
	}
	return &connection{
		uuid:    uuid.NewString(),
		backend: backend,
		title:   title,
		vc:      vc,
		sett:    settings,
	}, nil
}

func Connect(title, addr string, settings Settings, backend videobackend.Backend) (Connection, error) {
	return connect(context.Background(), title, addr, settings, backend)
}

func ConnectWithCancel(cancel context.Context, title, addr string, settings Settings, backend videobackend.Backend) (Connection, error) {
	return connect(cancel, title, addr, settings, backend)
}
