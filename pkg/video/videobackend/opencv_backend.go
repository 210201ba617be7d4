package videobackend

import (
	"context"
	"encoding/binary"
	"image"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tauraamui/dragondelay/pkg/video/videoclip"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVFrame struct {
	isClosed bool
	mat      gocv.Mat
}

func (frame *openCVFrame) DataRef() interface{} {
	return &frame.mat
}

func (frame *openCVFrame) ToBytes() []byte {
	var r, c, mt uint16
	// store the OpenCV matrix rows, columns and type
	r = uint16(frame.mat.Rows())  // 2 bytes
	c = uint16(frame.mat.Cols())  // 2 bytes
	mt = uint16(frame.mat.Type()) // 2 byte

	suffix := make([]byte, 8)
	binary.LittleEndian.PutUint16(suffix[:2], r)
	binary.LittleEndian.PutUint16(suffix[2:4], c)
	binary.LittleEndian.PutUint16(suffix[4:6], mt)
	suffix[6] = 0x13
	suffix[7] = 0x31

	return append(frame.mat.ToBytes(), suffix...)
}

func (frame *openCVFrame) Dimensions() videoframe.Dimensions {
	return videoframe.Dimensions{W: frame.mat.Cols(), H: frame.mat.Rows()}
}

func (frame *openCVFrame) Clone() videoframe.Frame {
	return &openCVFrame{mat: frame.mat.Clone()}
}

func (frame *openCVFrame) Close() {
	if !frame.isClosed {
		frame.mat.Close()
		frame.isClosed = true
	}
}

type openCVBackend struct{}

func (b *openCVBackend) Connect(cancel context.Context, addr string, size videoframe.Dimensions) (Connection, error) {
	conn := openCVConnection{size: size}
	err := conn.connect(cancel, addr)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (b *openCVBackend) NewFrame() videoframe.Frame {
	return &openCVFrame{mat: gocv.NewMat()}
}

func (b *openCVBackend) NewFrameFromBytes(d []byte) (videoframe.Frame, error) {
	if len(d) < 8 {
		return nil, xerror.New("OpenCV frame expects at least 8 bytes to load")
	}

	dl := len(d)
	suffix := d[dl-8:]

	if int(suffix[6]) != 0x13 || int(suffix[7]) != 0x31 {
		return nil, xerror.New("OpenCV frame bytes missing trailing suffix")
	}

	r := binary.LittleEndian.Uint16(suffix[:2])
	c := binary.LittleEndian.Uint16(suffix[2:4])
	mtypeid := binary.LittleEndian.Uint16(suffix[4:6])
	mattype := gocv.MatType(mtypeid)

	mat, err := gocv.NewMatFromBytes(int(r), int(c), mattype, d[:dl-8])
	if err != nil {
		return nil, err
	}
	return &openCVFrame{mat: mat}, nil
}

func (b *openCVBackend) NewWriter() videoclip.Writer {
	return &openCVClipWriter{}
}

func (b *openCVBackend) NewDisplay(title string) Display {
	return &openCVDisplay{title: title}
}

// toMat resolves the OpenCV matrix behind any frame this package creates.
// The returned release func must be called once the mat is no longer used.
func toMat(frame videoframe.NoCloser) (gocv.Mat, func(), error) {
	switch ref := frame.DataRef().(type) {
	case *gocv.Mat:
		return *ref, func() {}, nil
	case **image.RGBA:
		if *ref == nil {
			return gocv.Mat{}, nil, xerror.New("image frame holds no pixels")
		}
		mat, err := gocv.ImageToMatRGB(*ref)
		if err != nil {
			return gocv.Mat{}, nil, xerror.Errorf("unable to convert Go image into OpenCV mat: %w", err)
		}
		return mat, func() { mat.Close() }, nil
	default:
		return gocv.Mat{}, nil, xerror.New("frame data is not an OpenCV mat or Go image")
	}
}

const codec = "avc1.4d001e"

type openCVClipWriter struct {
	vw *gocv.VideoWriter
}

func (w *openCVClipWriter) init(clip videoclip.NoCloser) error {
	if err := ensureDirectoryPathExists(clip.RootPath()); err != nil {
		return err
	}

	dimensions, err := clip.FrameDimensions()
	if err != nil {
		return err
	}

	vw, err := openVideoWriter(
		clip.FileName(), codec, float64(clip.FPS()), dimensions.W, dimensions.H, true,
	)
	if err != nil {
		return err
	}
	w.vw = vw
	return nil
}

var openVideoWriter = func(filename, codec string, fps float64, width, height int, isColor bool) (*gocv.VideoWriter, error) {
	return gocv.VideoWriterFile(filename, codec, fps, width, height, isColor)
}

func ensureDirectoryPathExists(path string) error {
	err := fs.MkdirAll(path, os.ModePerm|os.ModeDir)
	if err == nil || os.IsExist(err) {
		return nil
	}
	return err
}

func (w *openCVClipWriter) reset() {
	w.vw.Close()
	w.vw = nil
}

func (w *openCVClipWriter) Write(clip videoclip.NoCloser) error {
	frames := clip.Frames()
	if len(frames) == 0 {
		return xerror.New("cannot write empty clip")
	}
	if err := w.init(clip); err != nil {
		return err
	}
	defer w.reset()
	for _, frame := range frames {
		if err := w.writeFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func (w *openCVClipWriter) writeFrame(frame videoframe.NoCloser) error {
	mat, release, err := toMat(frame)
	if err != nil {
		return err
	}
	defer release()
	return w.vw.Write(mat)
}

type openCVDisplay struct {
	title  string
	mu     sync.Mutex
	window *gocv.Window
}

func (d *openCVDisplay) Show(frame videoframe.NoCloser) error {
	mat, release, err := toMat(frame)
	if err != nil {
		return err
	}
	defer release()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window == nil {
		d.window = gocv.NewWindow(d.title)
	}
	d.window.IMShow(mat)
	d.window.WaitKey(1)
	return nil
}

func (d *openCVDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window == nil {
		return nil
	}
	err := d.window.Close()
	d.window = nil
	return err
}

type openCVConnection struct {
	uuid   string
	size   videoframe.Dimensions
	mu     sync.Mutex
	isOpen bool
	vc     *gocv.VideoCapture
}

func (c *openCVConnection) connect(cancel context.Context, addr string) error {
	connAndError := make(chan openVideoStreamResult, 1)
	go openVideoStream(addr, connAndError)
	select {
	case r := <-connAndError:
		if r.err != nil {
			return r.err
		}
		c.vc = r.vc
		if !c.size.Empty() {
			c.vc.Set(gocv.VideoCaptureFrameWidth, float64(c.size.W))
			c.vc.Set(gocv.VideoCaptureFrameHeight, float64(c.size.H))
		}
		c.isOpen = true
		return nil
	case <-cancel.Done():
		go closeLateVideoStream(connAndError)
		return xerror.New("connection cancelled")
	}
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	result := openVideoStreamResult{vc: vc, err: err}
	d <- result
}

func closeLateVideoStream(d chan openVideoStreamResult) {
	if r := <-d; r.err == nil && r.vc != nil {
		r.vc.Close()
	}
}

var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCapture(addr)
}

var readFromVideoConnection = func(vc *gocv.VideoCapture, mat *gocv.Mat) bool {
	if vc.IsOpened() {
		return vc.Read(mat)
	}
	return false
}

func (c *openCVConnection) UUID() string {
	if len(c.uuid) == 0 {
		c.uuid = uuid.NewString()
	}
	return c.uuid
}

func (c *openCVConnection) Read(frame videoframe.Frame) error {
	mat, ok := frame.DataRef().(*gocv.Mat)
	if !ok {
		return xerror.New("must pass OpenCV frame to OpenCV connection read")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok = readFromVideoConnection(c.vc, mat); !ok || mat.Empty() {
		return xerror.New("unable to read from video connection")
	}
	// devices are free to ignore the requested size, the session's is fixed
	if !c.size.Empty() && (mat.Cols() != c.size.W || mat.Rows() != c.size.H) {
		resized := gocv.NewMat()
		gocv.Resize(*mat, &resized, image.Pt(c.size.W, c.size.H), 0, 0, gocv.InterpolationLinear)
		mat.Close()
		*mat = resized
	}
	return nil
}

func (c *openCVConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isOpen {
		return c.vc.IsOpened()
	}
	return false
}

func (c *openCVConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = false
	return c.vc.Close()
}
