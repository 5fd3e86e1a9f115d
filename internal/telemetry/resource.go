package telemetry

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSample is a point-in-time read of the embedding process' host
// footprint, adapting the polling pattern from internal/budget.CPUWatcher
// to a single-shot sample rather than a running watch loop.
type ResourceSample struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// SampleProcessResources reads the current process' RSS and instantaneous
// CPU percentage. An error is returned only when the process handle
// cannot be opened, so callers can decide whether to skip the resource
// anomaly check entirely; if the RSS or CPU read itself fails, that field
// is left zero and no error is reported.
func SampleProcessResources() (ResourceSample, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ResourceSample{}, err
	}

	var sample ResourceSample
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		sample.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	return sample, nil
}
