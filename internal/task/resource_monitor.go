package task

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

var (
	taskCPUSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forgecode_task_cpu_seconds",
		Help: "Cumulative CPU time consumed by a running task.",
	}, []string{"task_id"})

	taskMemoryBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forgecode_task_memory_bytes",
		Help: "Resident memory of a running task.",
	}, []string{"task_id"})

	resourceViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forgecode_resource_violations_total",
		Help: "Count of resource-limit violations observed by the task orchestrator.",
	}, []string{"task_id", "action"})
)

// RegisterMetrics adds the resource-monitor gauges/counter to reg. Call
// once per process; safe to call with the default registry or a custom
// one. No HTTP route in this module serves the registered metrics.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{taskCPUSeconds, taskMemoryBytes, resourceViolations} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// sample is one reading of a process's resource usage.
type sample struct {
	cpuSeconds float64
	rssBytes   int64
}

// ResourceMonitor polls a task's process at a fixed interval and invokes
// onViolation with the task's configured action when its memory limit is
// crossed. Only Limits.MaxMemoryBytes is compared; MaxCPUPercent is not
// checked. Polling happens only inside Watch, and the Orchestrator creates
// a monitor but does not call Watch for any task.
type ResourceMonitor struct {
	interval    time.Duration
	onViolation func(t *types.Task, action types.ResourceAction, detail string)
}

// NewResourceMonitor creates a monitor that samples every interval.
func NewResourceMonitor(interval time.Duration, onViolation func(t *types.Task, action types.ResourceAction, detail string)) *ResourceMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &ResourceMonitor{interval: interval, onViolation: onViolation}
}

// Watch polls pid until stop is closed or the process disappears,
// reporting into the task_cpu_seconds/task_memory_bytes gauges and firing
// onViolation when t.Limits is exceeded.
func (m *ResourceMonitor) Watch(t *types.Task, pid int, stop <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer taskCPUSeconds.DeleteLabelValues(t.ID)
	defer taskMemoryBytes.DeleteLabelValues(t.ID)

	var start *sample
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s, err := readProcessSample(pid)
			if err != nil {
				return // process likely exited
			}
			if start == nil {
				start = &s
			}

			taskCPUSeconds.WithLabelValues(t.ID).Set(s.cpuSeconds)
			taskMemoryBytes.WithLabelValues(t.ID).Set(float64(s.rssBytes))

			if t.Limits.MaxMemoryBytes > 0 && s.rssBytes > t.Limits.MaxMemoryBytes {
				m.fire(t, fmt.Sprintf("memory %d exceeds limit %d", s.rssBytes, t.Limits.MaxMemoryBytes))
			}
		}
	}
}

func (m *ResourceMonitor) fire(t *types.Task, detail string) {
	action := t.OnViolation
	if action == "" {
		action = types.ResourceWarn
	}
	resourceViolations.WithLabelValues(t.ID, string(action)).Inc()
	if m.onViolation != nil {
		m.onViolation(t, action, detail)
	}
}

// readProcessSample reads /proc/<pid>/stat and /proc/<pid>/status on
// linux. Other platforms (darwin) have no stable stdlib-only equivalent
// without cgo, so it returns an error there, Watch stops at its first
// tick, and only the wall-clock limit enforced through the executor's
// context timeout applies.
func readProcessSample(pid int) (sample, error) {
	if runtime.GOOS != "linux" {
		return sample{}, fmt.Errorf("resource sampling unsupported on %s", runtime.GOOS)
	}

	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		return sample{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 22 {
		return sample{}, fmt.Errorf("unexpected /proc/%d/stat format", pid)
	}
	utime, _ := strconv.ParseFloat(fields[13], 64)
	stime, _ := strconv.ParseFloat(fields[14], 64)
	clockTicks := 100.0
	cpuSeconds := (utime + stime) / clockTicks

	statusPath := fmt.Sprintf("/proc/%d/status", pid)
	f, err := os.Open(statusPath)
	if err != nil {
		return sample{cpuSeconds: cpuSeconds}, nil
	}
	defer f.Close()

	var rssKB int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				rssKB, _ = strconv.ParseInt(parts[1], 10, 64)
			}
			break
		}
	}

	return sample{cpuSeconds: cpuSeconds, rssBytes: rssKB * 1024}, nil
}
