package camera

import "github.com/tauraamui/dragondelay/pkg/video/videoframe"

const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Settings fix the resolution of every frame read over
// a connection for as long as it stays open.
type Settings struct {
	Width  int
	Height int
}

func (s Settings) Dimensions() videoframe.Dimensions {
	d := videoframe.Dimensions{W: s.Width, H: s.Height}
	if d.Empty() {
		return videoframe.Dimensions{W: DefaultWidth, H: DefaultHeight}
	}
	return d
}
