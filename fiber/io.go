package fiber

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/reactor"
)

// ErrIOEnded marks a clean peer-initiated close: a zero-length read on a
// stream fd. Distinguished from a plain io.EOF because Reader is not an
// io.Reader (its Read signature differs to carry the suspend/resume
// integration), but the meaning mirrors io.EOF exactly.
var ErrIOEnded = errors.New("fiber: connection closed by peer")

// Reader accumulates bytes read from fd into a pooled buffer, suspending
// the owning fiber instead of blocking whenever the fd is not yet
// readable. Grounded on conn_reader.go's background-read-goroutine
// pattern, adapted so the "blocking" side is a fiber suspend rather than a
// second goroutine plus sync.Cond.
type Reader struct {
	fd          int
	disp        *reactor.Dispatcher
	buf         *bytebufferpool.ByteBuffer
	idleTimeout time.Duration
}

// NewReader creates a reader over fd using disp to suspend/resume the
// calling fiber on EAGAIN.
func NewReader(fd int, disp *reactor.Dispatcher) *Reader {
	return &Reader{fd: fd, disp: disp, buf: bytebufferpool.Get()}
}

// SetIdleTimeout arms an idle deadline: if the fd does not become
// readable within d of the next suspend, ReadSome returns a timeout
// error. Zero disables it (the default).
func (r *Reader) SetIdleTimeout(d time.Duration) { r.idleTimeout = d }

// Reset clears accumulated bytes so the buffer can be reused for the next
// message on a kept-alive connection.
func (r *Reader) Reset() { r.buf.Reset() }

// Release returns the pooled buffer. The Reader must not be used again
// afterward.
func (r *Reader) Release() { bytebufferpool.Put(r.buf) }

// Bytes returns the bytes accumulated so far.
func (r *Reader) Bytes() []byte { return r.buf.B }

// Discard drops the first n accumulated bytes (the parser has consumed
// them), keeping the remainder for the next read/parse cycle.
func (r *Reader) Discard(n int) {
	remaining := r.buf.B[n:]
	r.buf.Reset()
	r.buf.Write(remaining)
}

// ReadSome performs one raw read into the accumulation buffer, suspending
// f until the fd is readable if no data is immediately available. Returns
// the number of bytes newly appended. ErrIOEnded signals the peer closed
// its write side; any other error is fatal to the connection.
func (r *Reader) ReadSome(f *Fiber, scratch []byte) (int, error) {
	for {
		n, err := unix.Read(r.fd, scratch)
		if err == nil {
			if n == 0 {
				return 0, ErrIOEnded
			}
			r.buf.Write(scratch[:n])
			return n, nil
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			if waitErr := r.suspendForReadable(f); waitErr != nil {
				return 0, waitErr
			}
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return 0, errors.Wrap(err, "read")
	}
}

func (r *Reader) suspendForReadable(f *Fiber) error {
	result := f.Suspend(func(token uint64) {
		ev := newSelectEvent(r.fd, reactor.Readable, f, token)
		var deadlineUs int64
		if r.idleTimeout > 0 {
			deadlineUs = time.Now().Add(r.idleTimeout).UnixMicro()
		}
		// Runs on the fiber's own goroutine, concurrently with the
		// dispatcher's EventLoop goroutine; Submit queues the actual
		// Register call onto EventLoop instead of racing it directly.
		err := r.disp.Submit(func() error {
			return r.disp.RegisterWithDeadline(ev, deadlineUs)
		})
		if err != nil {
			panic(errors.Wrap(err, "reader: register select event"))
		}
	})
	return asWaitError(result)
}

// Writer drains a byte slice to fd, suspending the owning fiber on EAGAIN
// in the same fashion as Reader. onDrained, if set, is invoked once the
// entire buffer passed to WriteAll has been written.
type Writer struct {
	fd        int
	disp      *reactor.Dispatcher
	onDrained func()
}

// NewWriter creates a writer over fd using disp to suspend/resume the
// calling fiber on EAGAIN.
func NewWriter(fd int, disp *reactor.Dispatcher) *Writer {
	return &Writer{fd: fd, disp: disp}
}

// SetDrainedCallback installs (or clears, with nil) the post-drain hook.
func (w *Writer) SetDrainedCallback(fn func()) { w.onDrained = fn }

// WriteAll writes every byte of p, suspending on EAGAIN as needed.
func (w *Writer) WriteAll(f *Fiber, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(w.fd, p)
		if err == nil {
			p = p[n:]
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			if waitErr := w.suspendForWritable(f); waitErr != nil {
				return waitErr
			}
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			return io.ErrClosedPipe
		}
		return errors.Wrap(err, "write")
	}
	if w.onDrained != nil {
		w.onDrained()
	}
	return nil
}

func (w *Writer) suspendForWritable(f *Fiber) error {
	result := f.Suspend(func(token uint64) {
		ev := newSelectEvent(w.fd, reactor.Writable, f, token)
		// Same cross-goroutine hazard as suspendForReadable: go through
		// Submit rather than calling Register directly from this goroutine.
		err := w.disp.Submit(func() error {
			_, regErr := w.disp.Register(ev)
			return regErr
		})
		if err != nil {
			panic(errors.Wrap(err, "writer: register select event"))
		}
	})
	return asWaitError(result)
}

// asWaitError normalizes a Suspend result produced by selectEvent into
// either nil (the fd became ready) or an error (timeout/error/hangup).
func asWaitError(result any) error {
	switch v := result.(type) {
	case reactor.EventMask:
		if v.Has(reactor.Error) {
			return errors.New("fiber: fd reported error")
		}
		if v.Has(reactor.RemoteHangup) {
			return ErrIOEnded
		}
		return nil
	case reactor.Status:
		if v == reactor.StatusTimeout {
			return errors.New("fiber: i/o wait timed out")
		}
		return errors.Errorf("fiber: i/o wait ended with status %s", v)
	case error:
		return v
	default:
		return nil
	}
}
