// Package diag produces a support bundle: settings, logs, the temperature
// CSV and a metrics snapshot, packed into one tar.gz for bug reports.
package diag

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/internal/config"
	"github.com/thermawatch/agent/internal/sensors"
	"github.com/thermawatch/agent/pkg/types"
)

const (
	defaultOutputPrefix = "diag_"
	infoFileName        = "diagnostics/info.json"
	configDirName       = "config"
	logsDirName         = "logs"
	observabilityDir    = "observability"
)

const redactedMarker = "REDACTED"

var (
	webhookPattern  = regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/_-]+`)
	tokenPattern    = regexp.MustCompile(`(?i)(token=)([^&\s"']+)`)
	passwordPattern = regexp.MustCompile(`(?i)(password=)([^&\s"']+)`)
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	HTTPClient *http.Client
	Source     sensors.Source
}

type bundleInfo struct {
	GeneratedAt  string            `json:"generated_at"`
	OutputPath   string            `json:"output_path"`
	GoVersion    string            `json:"go_version"`
	OS           string            `json:"os"`
	Arch         string            `json:"arch"`
	SettingsPath string            `json:"settings_path,omitempty"`
	Readings     map[string]string `json:"readings,omitempty"`
	LogsRedacted bool              `json:"logs_redacted"`
	Warnings     []string          `json:"warnings"`
}

// Run executes the diagnostics workflow, producing a tar.gz bundle.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to settings file")
	outputPath := fs.String("output", "", "Path for diagnostics tarball (default diag_<ts>.tar.gz)")
	includeMetrics := fs.Bool("include-metrics", true, "Include metrics scrape snapshot")
	metricsURL := fs.String("metrics-url", "http://127.0.0.1:9460/metrics", "Metrics endpoint URL")
	metricsTimeout := fs.Duration("metrics-timeout", 3*time.Second, "HTTP timeout when scraping metrics")
	redactLogs := fs.Bool("redact-logs", true, "Redact webhook URLs and tokens in bundled files")

	if err := fs.Parse(args); err != nil {
		return err
	}

	now := deps.Now().UTC()
	outPath := *outputPath
	if outPath == "" {
		outPath = fmt.Sprintf("%s%s.tar.gz", defaultOutputPrefix, now.Format("20060102T150405Z"))
	} else if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output directory %q: %w", dir, err)
		}
	}

	info := bundleInfo{
		GeneratedAt:  now.Format(time.RFC3339),
		OutputPath:   outPath,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		LogsRedacted: *redactLogs,
		Warnings:     make([]string, 0, 4),
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	var mgr *config.Manager
	if m, err := config.NewManager(*configPath, quiet); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("settings unavailable (%s): %v", *configPath, err))
	} else {
		mgr = m
		info.SettingsPath = m.Path()
	}

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create diagnostics file %q: %w", outPath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	// Settings file, with secrets stripped.
	if fi, err := os.Stat(*configPath); err == nil && fi.Mode().IsRegular() {
		name := filepath.ToSlash(filepath.Join(configDirName, filepath.Base(*configPath)))
		if err := addRedactedFile(tw, *configPath, name, *redactLogs); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include settings %q: %v", *configPath, err))
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat settings %q: %v", *configPath, err))
	}

	if mgr != nil {
		// Application log directory.
		if logDir := filepath.Dir(mgr.AppLog().File); logDir != "." && logDir != "" {
			if _, err := os.Stat(logDir); err == nil {
				if err := addLogsDir(tw, logDir, logsDirName, *redactLogs); err != nil {
					info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include logs dir %q: %v", logDir, err))
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat logs dir %q: %v", logDir, err))
			}
		}

		// Temperature CSV.
		if csvPath := mgr.GetLogFile(); csvPath != "" {
			if _, err := os.Stat(csvPath); err == nil {
				name := filepath.ToSlash(filepath.Join(logsDirName, filepath.Base(csvPath)))
				if err := addFile(tw, csvPath, name); err != nil {
					info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include temperature log %q: %v", csvPath, err))
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat temperature log %q: %v", csvPath, err))
			}
		}

		// One fresh sensor sample for the report.
		source := deps.Source
		if source == nil {
			source = sensors.NewSystem(mgr, quiet)
		}
		snap := source.Snapshot(ctx)
		info.Readings = make(map[string]string, len(snap))
		for _, dev := range snap.Devices() {
			if r := snap[dev]; r.Valid {
				info.Readings[string(dev)] = types.FormatCelsius(r.Value) + "°C"
			} else {
				info.Readings[string(dev)] = "unavailable"
			}
		}
	}

	if *includeMetrics && *metricsURL != "" {
		client := deps.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: *metricsTimeout}
		}
		scrapeCtx, cancel := context.WithTimeout(ctx, *metricsTimeout)
		defer cancel()
		metricsData, err := scrapeMetrics(scrapeCtx, client, *metricsURL)
		if err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("metrics scrape failed: %v", err))
		} else if err := addBytes(tw, metricsData, filepath.ToSlash(filepath.Join(observabilityDir, "metrics.prom"))); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include metrics snapshot: %v", err))
		}
	}

	return writeInfo(tw, info)
}

func scrapeMetrics(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func redact(data []byte) []byte {
	data = webhookPattern.ReplaceAll(data, []byte(redactedMarker))
	data = tokenPattern.ReplaceAll(data, []byte("${1}"+redactedMarker))
	data = passwordPattern.ReplaceAll(data, []byte("${1}"+redactedMarker))
	return data
}

func writeInfo(tw *tar.Writer, info bundleInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics info: %w", err)
	}
	return addBytes(tw, payload, infoFileName)
}

func addBytes(tw *tar.Writer, data []byte, name string) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar content for %q: %w", name, err)
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer file.Close()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %q: %w", src, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %q: %w", src, err)
	}
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("copy %q: %w", src, err)
	}
	return nil
}

func addRedactedFile(tw *tar.Writer, src, name string, redactIt bool) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %q: %w", src, err)
	}
	if redactIt {
		data = redact(data)
	}
	return addBytes(tw, data, name)
}

func addLogsDir(tw *tar.Writer, dir, base string, redactIt bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))
		if !strings.HasSuffix(d.Name(), ".log") && !strings.HasSuffix(d.Name(), ".gz") {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".gz") {
			return addFile(tw, path, name)
		}
		return addRedactedFile(tw, path, name, redactIt)
	})
}
