package frame

import "iter"

// Source is a sequence of frames from a camera device or a decoded file. It
// owns the underlying handle exclusively.
//
// Read reports ok=false at end of stream and on read failure alike. Callers
// that need to tell the two apart check Err afterwards, which is nil at a
// clean end of stream. Close is idempotent and safe after a failed Open.
type Source interface {
	Open() error
	Read() (*Frame, bool)
	Err() error
	Info() Info
	Close() error
}

// Sink consumes annotated frames, typically an output video file.
type Sink interface {
	Write(f *Frame) error
	Close() error
}

// All yields frames from src until it is exhausted. The sequence simply ends on
// a read failure; check src.Err() once the loop is done.
func All(src Source) iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for {
			f, ok := src.Read()
			if !ok {
				return
			}
			if !yield(f) {
				return
			}
		}
	}
}
