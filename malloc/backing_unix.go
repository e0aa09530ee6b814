//go:build unix

package malloc

import "golang.org/x/sys/unix"

func sysalloc(bytes int64) ([]byte, bool) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	buf, err := unix.Mmap(-1, 0, int(bytes), prot, flags)
	if err != nil {
		panic(ErrorOutofMemory)
	}
	return buf, true
}

func sysfree(buf []byte) {
	// release failures are swallowed, the region is unusable either way.
	unix.Munmap(buf)
}
