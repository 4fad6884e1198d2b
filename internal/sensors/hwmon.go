package sensors

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const hwmonRoot = "/sys/class/hwmon"

// cpuChips are the hwmon chip names that expose the package/die temperature
// on the platforms we care about.
var cpuChips = map[string]bool{
	"coretemp":    true,
	"k10temp":     true,
	"zenpower":    true,
	"cpu_thermal": true,
}

// readCPUTemp reads the CPU temperature from sysfs hwmon.
func readCPUTemp() (float64, bool) {
	return readHwmonTemp(hwmonRoot, cpuChips)
}

// readHwmonTemp scans root for a chip whose name matches and returns its
// temp1_input in °C. Sysfs reports millidegrees.
func readHwmonTemp(root string, chips map[string]bool) (float64, bool) {
	matches, err := filepath.Glob(filepath.Join(root, "hwmon*", "name"))
	if err != nil {
		return 0, false
	}

	for _, namePath := range matches {
		nameBytes, err := os.ReadFile(namePath)
		if err != nil {
			continue
		}
		if !chips[strings.TrimSpace(string(nameBytes))] {
			continue
		}

		tempPath := filepath.Join(filepath.Dir(namePath), "temp1_input")
		tempBytes, err := os.ReadFile(tempPath)
		if err != nil {
			continue
		}
		milliC, err := strconv.ParseFloat(strings.TrimSpace(string(tempBytes)), 64)
		if err != nil {
			continue
		}
		return milliC / 1000.0, true
	}
	return 0, false
}
