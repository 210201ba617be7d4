package videoframe

type Dimensions struct {
	W, H int
}

func (d Dimensions) Empty() bool {
	return d.W <= 0 || d.H <= 0
}

// NoCloser is a read only view of a decoded frame. Holders
// of a NoCloser must not release it, and must Clone it to
// keep it beyond the call they received it in.
type NoCloser interface {
	DataRef() interface{}
	Dimensions() Dimensions
	ToBytes() []byte
	Clone() Frame
}

type Closer interface {
	Close()
}

type Frame interface {
	NoCloser
	Closer
}

// Stamped pairs a frame with its capture time in
// milliseconds read from a monotonic clock.
type Stamped struct {
	Frame     Frame
	Timestamp float64
}

func (s Stamped) Close() {
	if s.Frame != nil {
		s.Frame.Close()
	}
}
