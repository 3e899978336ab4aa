package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const fifoReadBufSize = 4096

// eventFIFO owns the read end of the sensor's named pipe for the gate's
// lifetime. The pipe is opened non-blocking and waited on with poll(2) so
// the event loop can wake on a state-derived timeout with no data.
type eventFIFO struct {
	path string
	fd   int
	rest []byte // trailing partial line carried between reads
}

// openEventFIFO creates the FIFO if absent (group-writable so the sensor
// group can write, owner-readable) and opens its read end.
func openEventFIFO(path string) (*eventFIFO, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o620); err != nil {
			return nil, fmt.Errorf("failed to create event fifo %s: %w", path, err)
		}
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open event fifo %s: %w", path, err)
	}

	return &eventFIFO{path: path, fd: fd}, nil
}

// Wait blocks up to timeout for readable data and returns complete lines.
// eof reports that the writer closed its end (read returned zero bytes);
// a plain timeout returns no lines and eof false.
func (f *eventFIFO) Wait(timeout time.Duration) (lines [][]byte, eof bool, err error) {
	ms := int(timeout.Milliseconds())
	if ms < 0 {
		ms = 0
	}

	pfd := []unix.PollFd{{Fd: int32(f.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("poll on event fifo failed: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
		return nil, false, nil
	}

	buf := make([]byte, fifoReadBufSize)
	rn, err := unix.Read(f.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read on event fifo failed: %w", err)
	}
	if rn == 0 {
		return nil, true, nil
	}

	f.rest = append(f.rest, buf[:rn]...)
	for {
		idx := bytes.IndexByte(f.rest, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(f.rest[:idx])
		f.rest = f.rest[idx+1:]
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}

	return lines, false, nil
}

// Close releases the read end.
func (f *eventFIFO) Close() error {
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}
