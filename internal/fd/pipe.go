package fd

import (
	"rvcore/internal/abi"
	"rvcore/internal/klock"
)

// Pipe is a bounded, in-kernel FIFO between a read end and a write end.
// Readers hold a strong reference (reading blocks only on data, never on
// the other end's presence); a reader going away with writers still
// blocked makes subsequent writes fail with EPIPE rather than hang
// forever, and a pipe with no writers left reports EOF to readers instead
// of blocking.
type Pipe struct {
	lock     klock.Spinlock
	notEmpty klock.Condvar
	notFull  klock.Condvar

	buf        []byte
	head, size int // head is the next byte to read; size is bytes buffered

	readers, writers int
}

// NewPipe allocates a pipe with the given buffer capacity.
func NewPipe(capacity int) *Pipe {
	return &Pipe{buf: make([]byte, capacity)}
}

// ReadEnd returns a fresh read-end handle, bumping the reader count.
func (p *Pipe) ReadEnd() *PipeReader {
	p.lock.Lock()
	p.readers++
	p.lock.Unlock()
	return &PipeReader{p: p}
}

// WriteEnd returns a fresh write-end handle, bumping the writer count.
func (p *Pipe) WriteEnd() *PipeWriter {
	p.lock.Lock()
	p.writers++
	p.lock.Unlock()
	return &PipeWriter{p: p}
}

func (p *Pipe) readLocked(dst []byte) int {
	n := min(len(dst), p.size)
	for i := 0; i < n; i++ {
		dst[i] = p.buf[(p.head+i)%len(p.buf)]
	}
	p.head = (p.head + n) % len(p.buf)
	p.size -= n
	return n
}

func (p *Pipe) writeLocked(src []byte) int {
	free := len(p.buf) - p.size
	n := min(len(src), free)
	tail := (p.head + p.size) % len(p.buf)
	for i := 0; i < n; i++ {
		p.buf[(tail+i)%len(p.buf)] = src[i]
	}
	p.size += n
	return n
}

// PipeReader is the read-end Ops for a Pipe.
type PipeReader struct{ p *Pipe }

func (r *PipeReader) Read(dst []byte, _ int64) (int, abi.Err_t) {
	p := r.p
	p.lock.Lock()
	defer p.lock.Unlock()
	for p.size == 0 {
		if p.writers == 0 {
			return 0, 0 // EOF: no writer can ever add more data.
		}
		p.notEmpty.Wait(&p.lock)
	}
	n := p.readLocked(dst)
	p.notFull.NotifyOne()
	return n, 0
}

func (r *PipeReader) Write([]byte, int64) (int, abi.Err_t) { return 0, abi.EBADF }

func (r *PipeReader) Close() abi.Err_t {
	p := r.p
	p.lock.Lock()
	p.readers--
	p.lock.Unlock()
	p.notFull.NotifyAll() // wake blocked writers so they can observe EPIPE
	return 0
}

func (r *PipeReader) Reopen() abi.Err_t {
	p := r.p
	p.lock.Lock()
	p.readers++
	p.lock.Unlock()
	return 0
}

// PipeWriter is the write-end Ops for a Pipe.
type PipeWriter struct{ p *Pipe }

func (w *PipeWriter) Read([]byte, int64) (int, abi.Err_t) { return 0, abi.EBADF }

func (w *PipeWriter) Write(src []byte, _ int64) (int, abi.Err_t) {
	p := w.p
	p.lock.Lock()
	defer p.lock.Unlock()
	cnt := 0
	for cnt < len(src) {
		if p.readers == 0 {
			return cnt, abi.EPIPE
		}
		for p.size == len(p.buf) {
			if p.readers == 0 {
				return cnt, abi.EPIPE
			}
			p.notFull.Wait(&p.lock)
		}
		n := p.writeLocked(src[cnt:])
		cnt += n
		p.notEmpty.NotifyOne()
	}
	return cnt, 0
}

func (w *PipeWriter) Close() abi.Err_t {
	p := w.p
	p.lock.Lock()
	p.writers--
	p.lock.Unlock()
	p.notEmpty.NotifyAll() // wake blocked readers so they can observe EOF
	return 0
}

func (w *PipeWriter) Reopen() abi.Err_t {
	p := w.p
	p.lock.Lock()
	p.writers++
	p.lock.Unlock()
	return 0
}
