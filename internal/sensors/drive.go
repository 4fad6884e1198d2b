package sensors

import (
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// drivetempChips is the hwmon chip the kernel drivetemp module registers.
var drivetempChips = map[string]bool{"drivetemp": true}

// readSSDTemp reads the first drive temperature: drivetemp hwmon when the
// kernel module is loaded, smartctl otherwise.
func readSSDTemp() (float64, bool) {
	if v, ok := readHwmonTemp(hwmonRoot, drivetempChips); ok {
		return v, ok
	}
	return readSmartctlTemp()
}

func readSmartctlTemp() (float64, bool) {
	path, err := exec.LookPath("smartctl")
	if err != nil || path == "" {
		return 0, false
	}

	devices, _ := filepath.Glob("/dev/nvme?")
	sata, _ := filepath.Glob("/dev/sd?")
	devices = append(devices, sata...)

	for _, dev := range devices {
		out, err := exec.Command("smartctl", "-A", dev).Output()
		if err != nil {
			continue
		}
		if v, ok := parseSmartTemp(string(out)); ok {
			return v, ok
		}
	}
	return 0, false
}

// NVMe health log line: "Temperature:  36 Celsius".
var smartNvmeRe = regexp.MustCompile(`Temperature:\s+(\d+)\s+Celsius`)

// parseSmartTemp extracts a drive temperature from smartctl -A output,
// handling both the NVMe health log and the SATA attribute table (attribute
// 194 Temperature_Celsius or 190 Airflow_Temperature_Cel, raw column).
func parseSmartTemp(out string) (float64, bool) {
	if m := smartNvmeRe.FindStringSubmatch(out); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		if fields[0] != "194" && fields[0] != "190" {
			continue
		}
		if !strings.Contains(fields[1], "Temperature") {
			continue
		}
		// RAW_VALUE may carry a suffix like "36 (Min/Max 14/53)".
		if v, err := strconv.ParseFloat(fields[9], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
