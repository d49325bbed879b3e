package fd

import "rvcore/internal/abi"

// Sink and Source are the board-level byte transports a console attaches
// to: typically the SBI legacy console (internal/board) fronting the
// hardware UART.
type Sink interface{ PutByte(b byte) }
type Source interface {
	// GetByte returns the next input byte, or ok=false if none is
	// currently available (non-blocking poll).
	GetByte() (b byte, ok bool)
}

// Console is the fd.Ops backing stdin/stdout/stderr before a process has
// any other descriptors open.
type Console struct {
	Out Sink
	In  Source
}

func (c *Console) Read(dst []byte, _ int64) (int, abi.Err_t) {
	n := 0
	for n < len(dst) {
		b, ok := c.In.GetByte()
		if !ok {
			break
		}
		dst[n] = b
		n++
	}
	return n, 0
}

func (c *Console) Write(src []byte, _ int64) (int, abi.Err_t) {
	for _, b := range src {
		c.Out.PutByte(b)
	}
	return len(src), 0
}

func (c *Console) Close() abi.Err_t  { return 0 }
func (c *Console) Reopen() abi.Err_t { return 0 }
