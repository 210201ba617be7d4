package videobackend

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/patrickmn/go-cache"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/video/videoclip"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var defaultMockSize = videoframe.Dimensions{W: 640, H: 480}

// base canvases are costly to render, keep one per resolution
var canvasCache = cache.New(10*time.Minute, 20*time.Minute)

type mockVideoBackend struct{}

func (b *mockVideoBackend) Connect(cancel context.Context, addr string, size videoframe.Dimensions) (Connection, error) {
	select {
	case <-cancel.Done():
		return nil, xerror.New("connection cancelled")
	default:
	}
	if size.Empty() {
		size = defaultMockSize
	}
	return &mockVideoConnection{title: addr, size: size, isOpen: true}, nil
}

func (b *mockVideoBackend) NewFrame() videoframe.Frame {
	return &imageFrame{}
}

func (b *mockVideoBackend) NewFrameFromBytes(d []byte) (videoframe.Frame, error) {
	return imageFrameFromBytes(d)
}

func (b *mockVideoBackend) NewWriter() videoclip.Writer {
	return &openCVClipWriter{}
}

func (b *mockVideoBackend) NewDisplay(title string) Display {
	return &headlessDisplay{title: title}
}

type mockVideoConnection struct {
	mu     sync.Mutex
	uuid   string
	title  string
	size   videoframe.Dimensions
	isOpen bool
}

func (mvc *mockVideoConnection) UUID() string {
	if len(mvc.uuid) == 0 {
		mvc.uuid = uuid.NewString()
	}
	return mvc.uuid
}

// Read renders a synthetic frame stamped with the wall clock so the
// delay between capture and display can be read off the output.
func (mvc *mockVideoConnection) Read(frame videoframe.Frame) error {
	ref, ok := frame.DataRef().(**image.RGBA)
	if !ok {
		return xerror.New("must pass image frame to MockVideo connection read")
	}

	mvc.mu.Lock()
	defer mvc.mu.Unlock()
	if !mvc.isOpen {
		return xerror.New("unable to read from closed mock connection")
	}

	img, err := drawTextLayerOntoBaseFrameClone(baseFrameCanvas(mvc.size), mvc.title, time.Now())
	if err != nil {
		return err
	}
	*ref = img
	return nil
}

func (mvc *mockVideoConnection) IsOpen() bool {
	mvc.mu.Lock()
	defer mvc.mu.Unlock()
	return mvc.isOpen
}

func (mvc *mockVideoConnection) Close() error {
	mvc.mu.Lock()
	defer mvc.mu.Unlock()
	mvc.isOpen = false
	return nil
}

type headlessDisplay struct {
	title string
	mu    sync.Mutex
	shown uint64
}

func (d *headlessDisplay) Show(frame videoframe.NoCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown++
	log.Debug("Display [%s] showing frame %d (%dx%d)", d.title, d.shown, frame.Dimensions().W, frame.Dimensions().H)
	return nil
}

func (d *headlessDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	log.Debug("Closing display [%s] after %d frames", d.title, d.shown)
	d.shown = 0
	return nil
}

func drawTextLayerOntoBaseFrameClone(base *image.RGBA, title string, now time.Time) (*image.RGBA, error) {
	baseClone := cloneImage(base)
	h := base.Bounds().Dy()
	fontSize := float64(h) / 8

	lines := []string{"DD_DELAY_TEST_STREAM", title, now.Format("15:04:05.000")}
	for i, line := range lines {
		if err := drawText(baseClone, 5, (i+1)*h/4, fontSize, line); err != nil {
			return nil, xerror.Errorf("unable to draw text onto in-mem image for test stream: %w", err)
		}
	}
	return baseClone, nil
}

func baseFrameCanvas(size videoframe.Dimensions) *image.RGBA {
	key := fmt.Sprintf("%dx%d", size.W, size.H)
	if c, found := canvasCache.Get(key); found {
		return c.(*image.RGBA)
	}

	canvas := toRGBA(resize.Resize(uint(size.W), uint(size.H), renderBaseFrameCanvas(), resize.Bilinear))
	canvasCache.Set(key, canvas, cache.DefaultExpiration)
	return canvas
}

func renderBaseFrameCanvas() image.Image {
	var w, h int = 600, 400
	var hw, hh float64 = float64(w / 2), float64(h / 2)
	r := 200.0
	θ := 2 * math.Pi / 3
	cr := &circle{hw - r*math.Sin(0), hh - r*math.Cos(0), 300}
	cg := &circle{hw - r*math.Sin(θ), hh - r*math.Cos(θ), 300}
	cb := &circle{hw - r*math.Sin(-θ), hh - r*math.Cos(-θ), 300}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			c := color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)),
				cb.Brightness(float64(x), float64(y)),
				255,
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	return cloneImage(src)
}

func cloneImage(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

var (
	parseFontOnce sync.Once
	regularFont   *truetype.Font
	parseFontErr  error
)

func loadRegularFont() (*truetype.Font, error) {
	parseFontOnce.Do(func() {
		regularFont, parseFontErr = freetype.ParseFont(goregular.TTF)
	})
	return regularFont, parseFontErr
}

func drawText(canvas *image.RGBA, x, y int, fontSize float64, text string) error {
	fontFace, err := loadRegularFont()
	if err != nil {
		return err
	}
	fontDrawer := &font.Drawer{
		Dst: canvas,
		Src: image.White,
		Face: truetype.NewFace(fontFace, &truetype.Options{
			Size:    fontSize,
			Hinting: font.HintingFull,
		}),
	}
	fontDrawer.Dot = fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y),
	}
	fontDrawer.DrawString(text)
	return nil
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	var dx, dy float64 = c.X - x, c.Y - y
	d := math.Sqrt(dx*dx+dy*dy) / c.R
	if d > 1 {
		return 0
	}
	return 255
}
