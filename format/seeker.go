package format

import (
	"io"

	"github.com/KarpelesLab/rafs"
)

// countingSeeker adapts a plain io.Writer to io.WriteSeeker for
// rafs.AlignedWriter's benefit, when the caller only ever writes forward
// sequentially and never actually needs to seek.
type countingSeeker struct {
	w io.Writer
	n int64
}

func newCountingSeeker(w io.Writer) *countingSeeker {
	return &countingSeeker{w: w}
}

func (c *countingSeeker) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Seek only supports reporting the current offset; a real seek is never
// issued by a single forward-writing pass.
func (c *countingSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return c.n, nil
	}
	if whence == io.SeekStart && offset == c.n {
		return c.n, nil
	}
	return 0, rafs.NewError(rafs.KindIO, "", rafs.ErrUnsupported)
}
