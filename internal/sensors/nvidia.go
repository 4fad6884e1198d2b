package sensors

import (
	"os/exec"
	"strconv"
	"strings"
)

// readGPUTemp reads the first GPU's temperature via nvidia-smi. Hosts without
// the tool (or without a discrete GPU) report an absent reading.
func readGPUTemp() (float64, bool) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil || path == "" {
		return 0, false
	}

	out, err := exec.Command("nvidia-smi",
		"--query-gpu=temperature.gpu",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return 0, false
	}

	return parseNvidiaTemp(string(out))
}

// parseNvidiaTemp extracts the first GPU temperature from nvidia-smi CSV
// output, one value per line.
func parseNvidiaTemp(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
