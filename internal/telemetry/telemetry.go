// Package telemetry samples CPU, memory, and (optionally) GPU temperature
// at near-zero overhead by reading the same /proc and /sys files the
// system's own monitoring tools read, rather than shelling out or pulling
// in a full metrics-collection dependency for three numbers.
package telemetry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Ram reports total and used memory in kilobytes, plus used as a percent
// of total.
type Ram struct {
	TotalKB uint64
	UsedKB  uint64
	Percent float64
}

// Sampler holds the previous /proc/stat reading so CPU can report a
// percentage over the interval between calls rather than a cumulative
// since-boot average.
type Sampler struct {
	procRoot string
	sysRoot  string

	lastTotal uint64
	lastIdle  uint64
	cpuPct    float64
}

// New builds a Sampler reading from the real /proc and /sys filesystems.
func New() *Sampler {
	return &Sampler{procRoot: "/proc", sysRoot: "/sys"}
}

// Refresh re-reads the CPU counters in /proc/stat. Call it once per
// telemetry tick; CPU reports the value captured by the most recent Refresh,
// while RAM and GPUTempC read their files on every call.
func (s *Sampler) Refresh() error {
	total, idle, err := s.readCPUJiffies()
	if err != nil {
		return fmt.Errorf("telemetry: read cpu stat: %w", err)
	}

	if s.lastTotal > 0 && total > s.lastTotal {
		deltaTotal := total - s.lastTotal
		deltaIdle := idle - s.lastIdle
		if deltaTotal > 0 {
			s.cpuPct = 100 * (1 - float64(deltaIdle)/float64(deltaTotal))
		}
	}
	s.lastTotal = total
	s.lastIdle = idle

	return nil
}

// CPU returns the CPU busy percentage observed between the two most recent
// Refresh calls. It is 0 until a second Refresh has run.
func (s *Sampler) CPU() float64 { return s.cpuPct }

// RAM reads total/used memory directly from /proc/meminfo; it doesn't
// depend on Refresh having been called.
func (s *Sampler) RAM() (Ram, error) {
	file, err := os.Open(filepath.Join(s.procRoot, "meminfo"))
	if err != nil {
		return Ram{}, fmt.Errorf("telemetry: open meminfo: %w", err)
	}
	defer file.Close()

	var totalKB, availableKB uint64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKB = parseMeminfoValue(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Ram{}, fmt.Errorf("telemetry: scan meminfo: %w", err)
	}

	usedKB := totalKB - availableKB
	var percent float64
	if totalKB > 0 {
		percent = 100 * float64(usedKB) / float64(totalKB)
	}

	return Ram{TotalKB: totalKB, UsedKB: usedKB, Percent: percent}, nil
}

// GPUTempC returns the first GPU-looking hwmon temperature it can find in
// Celsius, or 0 when no such sensor is exposed. GPU telemetry is
// best-effort: a headless or sensor-less box just reports 0.
func (s *Sampler) GPUTempC() uint32 {
	hwmonRoot := filepath.Join(s.sysRoot, "class", "hwmon")
	entries, err := os.ReadDir(hwmonRoot)
	if err != nil {
		return 0
	}

	for _, entry := range entries {
		namePath := filepath.Join(hwmonRoot, entry.Name(), "name")
		name, err := os.ReadFile(namePath)
		if err != nil {
			continue
		}
		if !looksLikeGPU(string(name)) {
			continue
		}

		tempPath := filepath.Join(hwmonRoot, entry.Name(), "temp1_input")
		raw, err := os.ReadFile(tempPath)
		if err != nil {
			continue
		}
		milliC, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			continue
		}
		return uint32(milliC / 1000)
	}

	return 0
}

func looksLikeGPU(hwmonName string) bool {
	name := strings.ToLower(strings.TrimSpace(hwmonName))
	return strings.Contains(name, "amdgpu") || strings.Contains(name, "nouveau") || strings.Contains(name, "nvidia")
}

// readCPUJiffies parses the aggregate "cpu" line of /proc/stat into total
// and idle jiffy counts.
func (s *Sampler) readCPUJiffies() (total, idle uint64, err error) {
	file, err := os.Open(filepath.Join(s.procRoot, "stat"))
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("empty stat file")
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}

	var values []uint64
	for _, f := range fields[1:] {
		v, convErr := strconv.ParseUint(f, 10, 64)
		if convErr != nil {
			break
		}
		values = append(values, v)
	}

	for _, v := range values {
		total += v
	}
	if len(values) > 3 {
		idle = values[3] // idle is the 4th field
	}
	return total, idle, nil
}

func parseMeminfoValue(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}
