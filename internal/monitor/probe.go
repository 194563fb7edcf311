package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Activity is the recent load seen by the monitor, passed to probes.
type Activity struct {
	CallsPerMinute        float64
	AverageResponseTimeMs float64
}

// ResourceProbe samples resource utilization as percentages.
type ResourceProbe interface {
	Sample(ctx context.Context, a Activity) (model.ResourceUtilization, error)
}

// SyntheticProbe models utilization from call volume. It is deterministic
// and needs no host access.
type SyntheticProbe struct{}

// Sample derives utilization from the recent activity.
func (SyntheticProbe) Sample(_ context.Context, a Activity) (model.ResourceUtilization, error) {
	rate := math.Max(0, a.CallsPerMinute)
	slow := math.Min(1, math.Max(0, a.AverageResponseTimeMs)/10000)
	return model.ResourceUtilization{
		CPU:     model.Clamp(5+rate*0.5+slow*10, 0, 100),
		Memory:  model.Clamp(20+rate*0.2, 0, 100),
		Network: model.Clamp(rate*0.8, 0, 100),
		Disk:    model.Clamp(2+rate*0.1, 0, 100),
	}, nil
}

// DefaultNetworkCapacity is the link speed, in bytes per second, used to
// turn network throughput into a percentage.
const DefaultNetworkCapacity = 125_000_000

// HostProbe reads live host counters through gopsutil.
type HostProbe struct {
	// DiskPath is the mount point sampled for disk usage.
	DiskPath string
	// NetworkCapacity is bytes per second treated as 100%.
	NetworkCapacity float64

	mu        sync.Mutex
	lastBytes uint64
	lastAt    time.Time
}

// NewHostProbe creates a probe for the root filesystem.
func NewHostProbe() *HostProbe {
	return &HostProbe{DiskPath: "/", NetworkCapacity: DefaultNetworkCapacity}
}

// Sample reads CPU, memory, disk and network utilization of the host.
func (p *HostProbe) Sample(ctx context.Context, _ Activity) (model.ResourceUtilization, error) {
	var r model.ResourceUtilization

	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return r, errors.Wrap(err, "failed to sample cpu")
	}
	if len(cpus) > 0 {
		r.CPU = cpus[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return r, errors.Wrap(err, "failed to sample memory")
	}
	r.Memory = vm.UsedPercent

	path := p.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return r, errors.Wrapf(err, "failed to sample disk %s", path)
	}
	r.Disk = du.UsedPercent

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return r, errors.Wrap(err, "failed to sample network")
	}
	if len(counters) > 0 {
		r.Network = p.networkPercent(counters[0].BytesSent+counters[0].BytesRecv, time.Now())
	}
	return r, nil
}

// networkPercent converts the byte counter delta since the previous
// sample into a share of the link capacity. The first sample reports 0.
func (p *HostProbe) networkPercent(total uint64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	prevBytes, prevAt := p.lastBytes, p.lastAt
	p.lastBytes, p.lastAt = total, now
	if prevAt.IsZero() || total < prevBytes {
		return 0
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	capacity := p.NetworkCapacity
	if capacity <= 0 {
		capacity = DefaultNetworkCapacity
	}
	return model.Clamp(float64(total-prevBytes)/elapsed/capacity*100, 0, 100)
}
