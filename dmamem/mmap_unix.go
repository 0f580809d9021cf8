//go:build unix

package dmamem

import "golang.org/x/sys/unix"

func mapMemory(size int) ([]byte, func([]byte) error, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return mem, unix.Munmap, nil
}
