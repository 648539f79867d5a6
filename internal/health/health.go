package health

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"relive/replay/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "ok"
		if !c.OK {
			mark = "fail"
		}
		s += fmt.Sprintf("  [%s] %s", mark, c.Name)
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll runs all readiness checks and returns combined status.
func CheckAll(cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkBinary("renderer", firstWord(cfg.Render.WorkerCmd)),
		checkBinary("ffmpeg", cfg.Render.FFmpegPath),
		checkWritable("sessions_dir", cfg.Data.SessionsDir),
		checkWritable("videos_dir", cfg.Data.VideosDir),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkBinary(name, path string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}

	if path == "" {
		result.Error = name + " command not configured"
		result.Latency = time.Since(start)
		return result
	}
	if _, err := exec.LookPath(path); err != nil {
		result.Error = fmt.Sprintf("%q not found in PATH: %v", path, err)
		result.Latency = time.Since(start)
		return result
	}
	result.OK = true
	result.Latency = time.Since(start)
	return result
}

func checkWritable(name, dir string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}

	probe := filepath.Join(dir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Error = fmt.Sprintf("not writable: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	_ = os.Remove(probe)
	result.OK = true
	result.Latency = time.Since(start)
	return result
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
