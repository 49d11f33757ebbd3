//go:build linux || darwin

package glidein

import "golang.org/x/sys/unix"

// freeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil //nolint:gosec,unconvert
}
