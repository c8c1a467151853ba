package monitoring

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/google/pprof/profile"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

const maxProfileDuration = 30 * time.Second

func (m *Monitor) engineStatus(w http.ResponseWriter, _ *http.Request) {
	if m.engine == nil {
		writeError(w, fmt.Errorf("%w: area engine", errDisabled))
		return
	}

	status := m.engine.Status()

	var buf bytes.Buffer

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(&buf); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		writeError(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		writeError(w, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

// collectProfile samples the CPU for one second, or for the duration given in
// the "duration" query parameter.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxProfileDuration {
			writeError(w, fmt.Errorf("%w: duration %q", errMalformed, raw))
			return
		}
		duration = d
	}

	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		writeError(w, err)
		return
	}

	select {
	case <-time.After(duration):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prof)
}
