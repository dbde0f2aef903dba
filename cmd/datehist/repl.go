package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
)

// repl holds the interactive session state. Observations accumulate in
// memory; every buckets/export command runs a fresh pass over them, so
// configuration changes apply retroactively.
type repl struct {
	app *app
	obs []observation
}

func runREPL(a *app) {
	r := &repl{app: a}

	fmt.Printf("datehist %s interactive mode, 'help' for commands\n", Version)
	p := prompt.New(
		r.execute,
		r.complete,
		prompt.OptionTitle("datehist"),
		prompt.OptionPrefix("datehist> "),
	)
	p.Run()
}

var replCommands = []prompt.Suggest{
	{Text: "insert", Description: "insert <timestamp> [value]"},
	{Text: "load", Description: "load <file> observations"},
	{Text: "buckets", Description: "show the current bucket table"},
	{Text: "export", Description: "export <file.parquet>"},
	{Text: "query", Description: "query <file.parquet> [from] [to]"},
	{Text: "set", Description: "set buckets <n> | set tz <offset>"},
	{Text: "info", Description: "show session state"},
	{Text: "reset", Description: "discard all observations"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the session"},
}

func (r *repl) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(replCommands, d.GetWordBeforeCursor(), true)
}

func (r *repl) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	var err error
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "insert":
		err = r.insert(args)
	case "load":
		err = r.load(args)
	case "buckets":
		err = r.buckets()
	case "export":
		err = r.export(args)
	case "query":
		err = r.query(args)
	case "set":
		err = r.set(args)
	case "info":
		r.info()
	case "reset":
		r.obs = nil
		fmt.Println("cleared")
	case "help":
		for _, c := range replCommands {
			fmt.Printf("  %-8s %s\n", c.Text, c.Description)
		}
	case "exit", "quit":
		os.Exit(0)
	default:
		err = fmt.Errorf("unknown command %q, try 'help'", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (r *repl) insert(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: insert <timestamp> [value]")
	}

	ts, err := parseTimestamp(args[0])
	if err != nil {
		return err
	}

	o := observation{Ts: ts}
	if len(args) == 2 {
		if o.Value, err = strconv.ParseFloat(args[1], 64); err != nil {
			return fmt.Errorf("parse value: %w", err)
		}
		o.HasValue = true
	}

	r.obs = append(r.obs, o)
	fmt.Printf("%d observations\n", len(r.obs))
	return nil
}

func (r *repl) load(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <file>")
	}

	obs, err := readObservationFile(args[0])
	if err != nil {
		return err
	}
	r.obs = append(r.obs, obs...)
	fmt.Printf("loaded %d, %d observations total\n", len(obs), len(r.obs))
	return nil
}

func (r *repl) buckets() error {
	if len(r.obs) == 0 {
		return fmt.Errorf("no observations, use insert or load first")
	}

	rows, err := r.app.aggregate(context.Background(), r.obs)
	if err != nil {
		return err
	}
	printRows(os.Stdout, rows, r.app.location())
	return nil
}

func (r *repl) export(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export <file.parquet>")
	}
	if len(r.obs) == 0 {
		return fmt.Errorf("no observations, use insert or load first")
	}

	rows, err := r.app.aggregate(context.Background(), r.obs)
	if err != nil {
		return err
	}
	if err := r.app.writeRows(args[0], rows); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", len(rows), args[0])
	return nil
}

func (r *repl) query(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("usage: query <file.parquet> [from] [to]")
	}
	from, to := "", ""
	if len(args) > 1 {
		from = args[1]
	}
	if len(args) > 2 {
		to = args[2]
	}
	return r.app.runQuery(context.Background(), args[0], from, to, 0)
}

func (r *repl) set(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set buckets <n> | set tz <offset>")
	}

	switch args[0] {
	case "buckets":
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse count: %w", err)
		}
		old := r.app.cfg.Histogram.TargetBuckets
		r.app.cfg.Histogram.TargetBuckets = n
		if err := r.app.cfg.Histogram.Validate(); err != nil {
			r.app.cfg.Histogram.TargetBuckets = old
			return err
		}
		fmt.Printf("target buckets = %d\n", n)
	case "tz":
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("parse offset: %w", err)
		}
		old := r.app.cfg.Histogram.TimezoneOffsetMinutes
		r.app.cfg.Histogram.TimezoneOffsetMinutes = int(d / time.Minute)
		if err := r.app.cfg.Histogram.Validate(); err != nil {
			r.app.cfg.Histogram.TimezoneOffsetMinutes = old
			return err
		}
		fmt.Printf("timezone offset = %s\n", d)
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}
	return nil
}

func (r *repl) info() {
	cfg := r.app.cfg
	fmt.Printf("observations:   %d\n", len(r.obs))
	fmt.Printf("target buckets: %d\n", cfg.Histogram.TargetBuckets)
	fmt.Printf("timezone:       %s\n", cfg.Histogram.TimezoneOffset())
	fmt.Printf("percentiles:    %v\n", cfg.Percentile.Enabled)
	fmt.Printf("compression:    %s\n", cfg.Export.Compression)
}
