package videobackend

import (
	"encoding/binary"
	"image"

	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

// imageFrame holds pixels decoded into a plain Go image. DataRef hands
// out a pointer to the image pointer so connections can swap pixels in.
type imageFrame struct {
	img *image.RGBA
}

func (frame *imageFrame) DataRef() interface{} {
	return &frame.img
}

func (frame *imageFrame) Dimensions() videoframe.Dimensions {
	if frame.img == nil {
		return videoframe.Dimensions{}
	}
	b := frame.img.Bounds()
	return videoframe.Dimensions{W: b.Dx(), H: b.Dy()}
}

func (frame *imageFrame) ToBytes() []byte {
	dims := frame.Dimensions()
	suffix := make([]byte, 6)
	binary.LittleEndian.PutUint16(suffix[:2], uint16(dims.W))
	binary.LittleEndian.PutUint16(suffix[2:4], uint16(dims.H))
	suffix[4] = 0x13
	suffix[5] = 0x32

	var pix []byte
	if frame.img != nil {
		pix = frame.img.Pix
	}
	out := make([]byte, 0, len(pix)+len(suffix))
	out = append(out, pix...)
	return append(out, suffix...)
}

func (frame *imageFrame) Clone() videoframe.Frame {
	if frame.img == nil {
		return &imageFrame{}
	}
	return &imageFrame{img: cloneImage(frame.img)}
}

func (frame *imageFrame) Close() {
	frame.img = nil
}

func imageFrameFromBytes(d []byte) (videoframe.Frame, error) {
	if len(d) < 6 {
		return nil, xerror.New("image frame expects at least 6 bytes to load")
	}

	dl := len(d)
	suffix := d[dl-6:]
	if suffix[4] != 0x13 || suffix[5] != 0x32 {
		return nil, xerror.New("image frame bytes missing trailing suffix")
	}

	w := int(binary.LittleEndian.Uint16(suffix[:2]))
	h := int(binary.LittleEndian.Uint16(suffix[2:4]))
	pix := d[:dl-6]
	if len(pix) != w*h*4 {
		return nil, xerror.Errorf("image frame of %dx%d expects %d pixel bytes, got %d", w, h, w*h*4, len(pix))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return &imageFrame{img: img}, nil
}
