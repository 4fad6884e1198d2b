package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thermawatch/agent/internal/config"
	"github.com/thermawatch/agent/internal/diag"
	"github.com/thermawatch/agent/internal/health"
	"github.com/thermawatch/agent/internal/history"
	"github.com/thermawatch/agent/internal/logging"
	"github.com/thermawatch/agent/internal/runtime"
	"github.com/thermawatch/agent/internal/sensors"
	"github.com/thermawatch/agent/pkg/types"
)

const defaultMonitoringAddr = "127.0.0.1:9460"

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "check":
		err = check(ctx, os.Args[2:])
	case "diag":
		err = diag.Run(ctx, os.Args[2:], diag.Dependencies{})
	case "version":
		fmt.Printf("thermawatch-agent %s\n", version)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to settings file")
	monitoringAddr := fs.String("monitoring-addr", defaultMonitoringAddr, "Address for /metrics, /healthz and /readyz")
	historyPath := fs.String("history", "", "Path to the alert history database (empty disables persistence)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	bootLog := logrus.New()
	mgr, err := config.NewManager(*configPath, bootLog)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	appLog := mgr.AppLog()
	log := logging.New(logging.Options{
		File:    appLog.File,
		Level:   appLog.Level,
		Console: appLog.Console == nil || *appLog.Console,
	})
	log.WithFields(logrus.Fields{
		"version":  version,
		"settings": mgr.Path(),
	}).Info("agent starting")

	opts := []runtime.Option{}
	if *historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(*historyPath), 0o755); err != nil {
			return fmt.Errorf("ensure history dir: %w", err)
		}
		store, err := history.Open(ctx, *historyPath, history.DefaultCapacity)
		if err != nil {
			return fmt.Errorf("open alert history: %w", err)
		}
		defer store.Close()
		opts = append(opts, runtime.WithHistory(store))
	}

	rt := runtime.New(mgr, log, opts...)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wait := rt.Start(runCtx)

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		wait()
		return nil
	})

	grp.Go(func() error {
		return serveMonitoring(groupCtx, *monitoringAddr, rt.Checker(), log)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	log.Info("agent stopped")
	return nil
}

// check samples the sensors once and prints what the agent would monitor.
func check(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to settings file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logrus.New()
	mgr, err := config.NewManager(*configPath, log)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	snap := sensors.NewSystem(mgr, log).Snapshot(ctx)
	if snap.AllAbsent() {
		return fmt.Errorf("no temperature sensors found")
	}

	for _, dev := range snap.Devices() {
		r := snap[dev]
		if !r.Valid {
			fmt.Printf("%-4s unavailable\n", dev)
			continue
		}
		fmt.Printf("%-4s %s°C (threshold: %s°C)\n",
			dev, types.FormatCelsius(r.Value), types.FormatCelsius(mgr.GetThreshold(dev)))
	}
	return nil
}

func printUsage() {
	fmt.Println("ThermaWatch Agent CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  thermawatch-agent run [--config settings.yaml] [--monitoring-addr host:port] [--history path]")
	fmt.Println("  thermawatch-agent check [--config settings.yaml]")
	fmt.Println("  thermawatch-agent diag [--config settings.yaml] [--output file] [--metrics-url url]")
	fmt.Println("  thermawatch-agent version")
}

func monitoringMux(checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func serveMonitoring(ctx context.Context, addr string, checker *health.Checker, log *logrus.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: monitoringMux(checker),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("monitoring endpoints listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
