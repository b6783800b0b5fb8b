package transport

import "os"

// SelectCanceller is a self-pipe used to unblock the receive thread's
// socket select loop on shutdown, without requiring every socket
// implementation to expose a cancellable read (§4.4: "a select-canceller
// pipe").
type SelectCanceller struct {
	r *os.File
	w *os.File
}

// NewSelectCanceller opens the pipe.
func NewSelectCanceller() (*SelectCanceller, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &SelectCanceller{r: r, w: w}, nil
}

// Cancel wakes any goroutine blocked on ReadFD.
func (c *SelectCanceller) Cancel() error {
	_, err := c.w.Write([]byte{0})
	return err
}

// ReadFD exposes the read end's file descriptor for use in a select
// or poll set.
func (c *SelectCanceller) ReadFD() int {
	return int(c.r.Fd())
}

// Close releases both pipe ends.
func (c *SelectCanceller) Close() error {
	werr := c.w.Close()
	rerr := c.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
