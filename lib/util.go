package lib

import sigar "github.com/cloudfoundry/gosigar"

// Getsysmem system memory usage in bytes.
func Getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
