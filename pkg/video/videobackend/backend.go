package videobackend

import (
	"context"
	"strings"

	"github.com/spf13/afero"
	"github.com/tauraamui/dragondelay/pkg/video/videoclip"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
)

var fs = afero.NewOsFs()

type Connection interface {
	UUID() string
	Read(videoframe.Frame) error
	IsOpen() bool
	Close() error
}

// Display is a live surface delayed frames are shown on.
type Display interface {
	Show(videoframe.NoCloser) error
	Close() error
}

type Backend interface {
	Connect(ctx context.Context, addr string, size videoframe.Dimensions) (Connection, error)
	NewFrame() videoframe.Frame
	NewFrameFromBytes([]byte) (videoframe.Frame, error)
	NewWriter() videoclip.Writer
	NewDisplay(title string) Display
}

func Default() Backend {
	return OpenCV()
}

func OpenCV() Backend {
	return &openCVBackend{}
}

func Mock() Backend {
	return &mockVideoBackend{}
}

// Resolve picks a backend by name, usually DRAGON_VIDEO_BACKEND.
func Resolve(t string) Backend {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "mock":
		return Mock()
	default:
		return Default()
	}
}
