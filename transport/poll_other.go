//go:build !linux

package transport

// pollWritable has no portable non-blocking implementation outside
// Linux's poll(2); non-Linux builds assume the socket is writable and
// rely on the write deadline to bound blocking instead.
func pollWritable(fd int, timeoutMs int) (bool, error) {
	return true, nil
}
