// datehist aggregates timestamp streams into adaptive calendar-aware time
// buckets, exports the result to Parquet, and queries exported files.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/xtxerr/datehist/internal/aggregate"
	appconfig "github.com/xtxerr/datehist/internal/config"
	"github.com/xtxerr/datehist/internal/export"
	"github.com/xtxerr/datehist/internal/histogram"
	"github.com/xtxerr/datehist/internal/logging"
	"github.com/xtxerr/datehist/internal/pipeline"
	"github.com/xtxerr/datehist/internal/query"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	buckets := flag.Int("buckets", 0, "target bucket count (overrides config)")
	tz := flag.String("tz", "", "timezone offset, e.g. 2h or -5h30m (overrides config)")
	percentiles := flag.Bool("percentiles", false, "enable per-bucket percentiles")
	input := flag.String("input", "", "input file with one 'timestamp [value]' per line, - for stdin")
	exportPath := flag.String("export", "", "write buckets to this Parquet file")
	partitions := flag.Int("partitions", 0, "concurrent partitions, 0 = GOMAXPROCS (overrides config)")
	queryPath := flag.String("query", "", "query an exported Parquet file instead of ingesting")
	from := flag.String("from", "", "query range start (epoch millis or RFC3339)")
	to := flag.String("to", "", "query range end, exclusive (epoch millis or RFC3339)")
	limit := flag.Int("limit", 0, "maximum rows returned by a query, 0 = unlimited")
	repl := flag.Bool("repl", false, "interactive mode")
	jsonLog := flag.Bool("json-log", false, "force JSON log output")
	logLevel := flag.String("log-level", "", "debug, info, warn, error (overrides config)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("datehist %s\n", Version)
		return
	}

	// Load config
	cfg, err := appconfig.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = appconfig.DefaultConfig()
		} else {
			fatal("load config: %v", err)
		}
	}

	// CLI overrides
	if *buckets > 0 {
		cfg.Histogram.TargetBuckets = *buckets
	}
	if *tz != "" {
		d, err := time.ParseDuration(*tz)
		if err != nil {
			fatal("parse -tz: %v", err)
		}
		cfg.Histogram.TimezoneOffsetMinutes = int(d / time.Minute)
	}
	if *percentiles {
		cfg.Percentile.Enabled = true
	}
	if *partitions > 0 {
		cfg.Pipeline.Partitions = *partitions
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fatal("config: %v", err)
	}

	// JSON logs when forced, configured, or not attached to a terminal.
	useJSON := *jsonLog || cfg.Logging.JSON || !term.IsTerminal(int(os.Stderr.Fd()))
	logging.Init(parseLogLevel(cfg.Logging.Level), useJSON)
	logging.Debug("datehist starting", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg}

	switch {
	case *repl:
		runREPL(a)
	case *queryPath != "":
		if err := a.runQuery(ctx, *queryPath, *from, *to, *limit); err != nil {
			fatal("query: %v", err)
		}
	case *input != "":
		if err := a.runPass(ctx, *input, *exportPath); err != nil {
			fatal("%v", err)
		}
	default:
		fmt.Fprintln(os.Stderr, "datehist: one of -input, -query or -repl is required")
		flag.Usage()
		os.Exit(2)
	}
}

// app carries the resolved configuration across CLI modes.
type app struct {
	cfg *appconfig.Config
}

func (a *app) histConfig() histogram.Config {
	return histogram.Config{
		TargetBuckets:  a.cfg.Histogram.TargetBuckets,
		TimezoneOffset: a.cfg.Histogram.TimezoneOffset(),
	}
}

func (a *app) exportOptions() export.Options {
	return export.Options{
		Compression:      export.ParseCompressionType(a.cfg.Export.Compression),
		CompressionLevel: a.cfg.Export.CompressionLevel,
	}
}

// statsOf builds the single-observation bucket value for one input sample.
func (a *app) statsOf(value float64, ts int64) *aggregate.Stats {
	var s *aggregate.Stats
	if a.cfg.Percentile.Enabled {
		s = aggregate.NewWithAccuracy(a.cfg.Percentile.Accuracy)
	} else {
		s = aggregate.New(false)
	}
	s.Add(value, ts)
	return s
}

// runPass ingests a file, prints the bucket table and optionally exports it.
func (a *app) runPass(ctx context.Context, inputPath, exportPath string) error {
	obs, err := readObservationFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(obs) == 0 {
		return fmt.Errorf("no observations in %s", inputPath)
	}

	rows, err := a.aggregate(ctx, obs)
	if err != nil {
		return err
	}

	printRows(os.Stdout, rows, a.location())

	if exportPath != "" {
		if err := a.writeRows(exportPath, rows); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logging.Info("exported histogram", "path", exportPath, "rows", len(rows))
	}
	return nil
}

// aggregate runs the partitioned pass and converts the result to rows. Inputs
// without values run as a plain counting pass.
func (a *app) aggregate(ctx context.Context, obs []observation) ([]export.BucketRow, error) {
	if !anyValues(obs) {
		timestamps := make([]int64, len(obs))
		for i, o := range obs {
			timestamps[i] = o.Ts
		}
		res, err := pipeline.Count(ctx, a.histConfig(), timestamps, a.cfg.Pipeline.Partitions)
		if err != nil {
			return nil, err
		}
		return export.RowsFromCounts(res), nil
	}

	samples := make([]pipeline.Sample[*aggregate.Stats], len(obs))
	for i, o := range obs {
		samples[i] = pipeline.Sample[*aggregate.Stats]{Ts: o.Ts, Value: a.statsOf(o.Value, o.Ts)}
	}
	res, err := pipeline.Run(ctx, a.histConfig(), aggregate.Combine, samples, a.cfg.Pipeline.Partitions)
	if err != nil {
		return nil, err
	}
	return export.RowsFromStats(res), nil
}

// writeRows exports bucket rows to a Parquet file.
func (a *app) writeRows(path string, rows []export.BucketRow) error {
	w, err := export.NewWriter(path, a.exportOptions())
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// runQuery reads buckets back from an exported Parquet file.
func (a *app) runQuery(ctx context.Context, path, from, to string, limit int) error {
	q := query.RangeQuery{Path: path, Limit: limit}

	var err error
	if from != "" {
		if q.StartMillis, err = parseTimestamp(from); err != nil {
			return err
		}
	}
	if to != "" {
		if q.EndMillis, err = parseTimestamp(to); err != nil {
			return err
		}
	}

	s, err := query.New(a.cfg.Query.MemoryLimit)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.QueryRange(ctx, q)
	if err != nil {
		return err
	}
	printRows(os.Stdout, rows, a.location())
	return nil
}

// location returns the configured fixed zone for display purposes.
func (a *app) location() *time.Location {
	offset := a.cfg.Histogram.TimezoneOffset()
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("local", int(offset/time.Second))
}

// printRows renders a bucket table.
func printRows(w io.Writer, rows []export.BucketRow, loc *time.Location) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no buckets")
		return
	}

	width := time.Duration(rows[0].RoughMillis*int64(rows[0].Multiplier)) * time.Millisecond
	fmt.Fprintf(w, "%d buckets, ~%s each\n", len(rows), width)

	hasValues := false
	for _, r := range rows {
		if r.Sum != 0 || r.Min != 0 || r.Max != 0 {
			hasValues = true
			break
		}
	}

	const stamp = "2006-01-02T15:04:05Z07:00"
	if hasValues {
		fmt.Fprintf(w, "%-25s %-25s %8s %12s %12s %12s\n", "START", "END", "COUNT", "MIN", "MAX", "AVG")
		for _, r := range rows {
			fmt.Fprintf(w, "%-25s %-25s %8d %12.4g %12.4g %12.4g\n",
				time.UnixMilli(r.BucketStart).In(loc).Format(stamp),
				time.UnixMilli(r.BucketEnd).In(loc).Format(stamp),
				r.Count, r.Min, r.Max, r.Avg)
		}
		return
	}

	fmt.Fprintf(w, "%-25s %-25s %8s\n", "START", "END", "COUNT")
	for _, r := range rows {
		fmt.Fprintf(w, "%-25s %-25s %8d\n",
			time.UnixMilli(r.BucketStart).In(loc).Format(stamp),
			time.UnixMilli(r.BucketEnd).In(loc).Format(stamp),
			r.Count)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "datehist: "+format+"\n", args...)
	os.Exit(1)
}
