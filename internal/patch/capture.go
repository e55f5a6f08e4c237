package patch

import (
	"bytes"
	"io"
	"os"
	"time"
)

// drainTimeout bounds how long stop waits for writers that still hold the
// pipe, such as a background process started by an extension.
const drainTimeout = 2 * time.Second

// capture swaps os.Stdout for a pipe drained into memory. It is not safe
// for concurrent use; the host loads extensions one at a time.
type capture struct {
	prev *os.File
	r, w *os.File
	buf  bytes.Buffer
	done chan struct{}
}

func startCapture() (*capture, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c := &capture{prev: os.Stdout, r: r, w: w, done: make(chan struct{})}
	go func() {
		_, _ = io.Copy(&c.buf, r)
		close(c.done)
	}()
	os.Stdout = w
	return c, nil
}

// stop restores the previous stdout and returns everything captured.
func (c *capture) stop() string {
	os.Stdout = c.prev
	_ = c.w.Close()
	select {
	case <-c.done:
	case <-time.After(drainTimeout):
	}
	_ = c.r.Close()
	<-c.done
	return c.buf.String()
}
