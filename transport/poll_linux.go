//go:build linux

package transport

import (
	"golang.org/x/sys/unix"
)

// pollWritable reports whether fd can accept a write within timeoutMs
// milliseconds, used by the send thread to avoid blocking indefinitely
// on a congested TCP relay connection (§4.4 "send thread... writes to
// sockets").
func pollWritable(fd int, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return fds[0].Revents&unix.POLLOUT != 0, nil
}
