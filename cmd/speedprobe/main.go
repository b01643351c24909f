package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"hls-preload/internal/database"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/strategy"

	"golang.org/x/term"
)

const (
	// Default timeout for the probe request and database reads
	defaultTimeout = 30 * time.Second
	// Default data directory, matching the server's DATA_DIR default
	defaultDataDir = "./data"
)

// estimateReport is the output of the estimate command.
type estimateReport struct {
	SpeedMbps float64         `json:"speedMbps"`
	Source    netspeed.Source `json:"source"`
	Strategy  strategy.Name   `json:"strategy"`
	Config    strategy.Config `json:"config"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	tty := term.IsTerminal(int(os.Stdout.Fd()))

	var err error
	switch os.Args[1] {
	case "estimate":
		err = runEstimate(ctx, os.Args[2:], os.Stdout, tty)
	case "history":
		err = runHistory(ctx, os.Args[2:], os.Stdout, tty)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(os.Args[1]))
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// sanitizeCommand replaces anything outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "HLS Preload Speed Probe")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: speedprobe <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  estimate  - Measure network speed and pick a preload strategy")
	fmt.Fprintln(w, "              -url <probe url>  -downlink <Mbps>  -timeout <duration>")
	fmt.Fprintln(w, "  history   - Show recent perf-test results")
	fmt.Fprintln(w, "              -limit <n>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Output is a table on a terminal and JSON otherwise.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  DATA_DIR - Directory holding perftests.db (default: %s)\n", defaultDataDir)
}

func runEstimate(ctx context.Context, args []string, out io.Writer, tty bool) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	probeURL := fs.String("url", "", "speed probe resource URL")
	downlink := fs.Float64("downlink", -1, "known downlink in Mbps; skips the probe")
	timeout := fs.Duration("timeout", defaultTimeout, "probe request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var provider netspeed.ConnectionProvider
	var prober *netspeed.Prober
	switch {
	case *downlink >= 0:
		provider = netspeed.NewStaticProvider(*downlink)
	case *probeURL != "":
		prober = netspeed.NewProber(*probeURL,
			netspeed.WithHTTPClient(&http.Client{Timeout: *timeout}))
	default:
		return errors.New("either -url or -downlink is required")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	est := netspeed.NewEstimator(provider, prober).Estimate(ctx)
	name := strategy.Select(est.SpeedMbps)
	report := estimateReport{
		SpeedMbps: est.SpeedMbps,
		Source:    est.Source,
		Strategy:  name,
		Config:    name.Config(),
	}

	if !tty {
		return writeJSON(out, report)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Speed:\t%.2f Mbps (%s)\n", report.SpeedMbps, report.Source)
	fmt.Fprintf(tw, "Strategy:\t%s\n", report.Strategy)
	fmt.Fprintf(tw, "Buffer target:\t%ds\n", report.Config.BufferTargetSeconds)
	fmt.Fprintf(tw, "Preload ahead:\t%d segments\n", report.Config.PreloadAheadSegments)
	return tw.Flush()
}

func runHistory(ctx context.Context, args []string, out io.Writer, tty bool) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("-limit must be positive")
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	dbPath := filepath.Join(dataDir, "perftests.db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no perf-test database at %s (set DATA_DIR): %w", dbPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db, err := database.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	results, err := db.ListResults(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return printHistory(out, results, tty)
}

func printHistory(out io.Writer, results []database.PerfTestResult, tty bool) error {
	if !tty {
		if results == nil {
			results = []database.PerfTestResult{}
		}
		return writeJSON(out, results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "No perf tests recorded.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tLOAD\tFIRST DATA\tBYTES\tURL")
	for i := range results {
		r := &results[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Kind,
			r.Status,
			formatMillis(r.LoadTimeMillis),
			formatMillis(r.FirstDataMillis),
			r.BytesTransferred,
			r.URL,
		)
	}
	return tw.Flush()
}

func formatMillis(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *ms)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
