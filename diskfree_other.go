//go:build !linux && !darwin

package glidein

func freeBytes(_ string) (uint64, error) {
	return 0, errFreeSpaceUnsupported
}
