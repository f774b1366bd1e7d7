package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bjtill/VCF-Sample-Filter/internal/config"
	"github.com/bjtill/VCF-Sample-Filter/internal/datasource"
	"github.com/bjtill/VCF-Sample-Filter/internal/datasource/file"
	"github.com/bjtill/VCF-Sample-Filter/internal/datasource/httpds"
	"github.com/bjtill/VCF-Sample-Filter/internal/filter"
	"github.com/bjtill/VCF-Sample-Filter/internal/history"
	"github.com/bjtill/VCF-Sample-Filter/internal/metrics"
	"github.com/bjtill/VCF-Sample-Filter/internal/metrics/prompush"
	"github.com/bjtill/VCF-Sample-Filter/internal/pipeline"
)

// main is the entry point for the filter binary. It resolves the run
// configuration (flags over config file over env), optionally initializes
// a metrics backend, and executes the streaming run.
func main() {
	var (
		cfgPath           string
		run               config.Run
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "run config JSON path (flags override its fields)")
	flag.StringVar(&run.Input, "i", "", "input VCF (.vcf or .vcf.gz, or an http(s) URL)")
	flag.StringVar(&run.Output, "o", "", "output path")
	flag.StringVar(&run.Samples, "s", "", "sample list, one name per line")
	flag.BoolVar(&run.Compress, "z", false, "gzip-compress the output")
	flag.IntVar(&run.Runtime.Workers, "t", 0, "projection worker count (0 = default)")
	flag.IntVar(&run.Runtime.QueueCapacity, "queue", 0, "inter-stage queue capacity (0 = default)")
	flag.StringVar(&run.History, "history", "", "SQLite file recording completed runs")
	historyList := flag.Int("history-list", 0, "print the latest N recorded runs and exit (requires -history)")
	flag.StringVar(&run.Job, "job", "", "job name for logging and metrics")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (e.g. pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fatalf("%v", err)
		}
		run = mergeRun(loaded, run)
	}
	if run.Runtime.Workers == 0 {
		run.Runtime.Workers = getenvInt("VCF_FILTER_THREADS", 0)
	}
	if run.Job == "" {
		run.Job = "vcf_filter"
	}

	if *historyList > 0 {
		if run.History == "" {
			fatalf("-history-list requires -history")
		}
		if err := listHistory(os.Stdout, run.History, *historyList); err != nil {
			fatalf("%v", err)
		}
		return
	}

	issues := config.Validate(run)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		b, err := prompush.NewBackend(run.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			if *verbose {
				log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, run.Job)
			}
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := runFilter(ctx, run, *verbose)
	dur := time.Since(start)

	metrics.RecordStage(run.Job, "filter", err, dur)
	metrics.RecordRecords(run.Job, "processed", res.LinesProcessed)
	metrics.RecordRecords(run.Job, "projected", res.Projected)
	metrics.RecordRecords(run.Job, "passed_through", res.PassedThrough)
	metrics.RecordRecords(run.Job, "written", res.LinesWritten)

	if run.History != "" {
		recordHistory(run, res, start, dur, err)
	}

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	log.Printf("done: %d lines written (%d projected, %d passed through), %d of %d samples kept, %s",
		res.LinesWritten, res.Projected, res.PassedThrough,
		res.MatchedSamples, res.TotalSamples, dur.Truncate(time.Millisecond))
}

// runFilter opens the three streams and drives one pipeline run.
func runFilter(ctx context.Context, run config.Run, verbose bool) (pipeline.Result, error) {
	samples, err := filter.LoadSamplesFile(run.Samples)
	if err != nil {
		return pipeline.Result{}, err
	}

	var src datasource.Source
	if strings.HasPrefix(run.Input, "http://") || strings.HasPrefix(run.Input, "https://") {
		src = httpds.Remote{URL: run.Input}
	} else {
		src = file.NewLocal(run.Input)
	}

	in, err := src.Open(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer in.Close()

	out, err := file.NewSink(run.Output, run.Compress).Create(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}

	opts := pipeline.Options{
		Input:         in,
		Output:        out,
		Samples:       samples,
		Workers:       run.Runtime.Workers,
		QueueCapacity: run.Runtime.QueueCapacity,
	}
	if verbose {
		opts.Progress = func(processed int64) {
			log.Printf("progress: %d lines processed", processed)
		}
	}

	res, runErr := pipeline.Run(ctx, opts)
	if cerr := out.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	return res, runErr
}

// recordHistory appends one run row. History is an audit trail; failures
// are logged and never change the exit status.
func recordHistory(run config.Run, res pipeline.Result, start time.Time, dur time.Duration, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeFn, err := history.Open(ctx, run.History)
	if err != nil {
		log.Printf("history: %v", err)
		return
	}
	defer closeFn()

	e := history.Entry{
		StartedAt:      start,
		Duration:       dur,
		Input:          run.Input,
		Output:         run.Output,
		MatchedSamples: res.MatchedSamples,
		TotalSamples:   res.TotalSamples,
		LinesProcessed: res.LinesProcessed,
		LinesWritten:   res.LinesWritten,
		Projected:      res.Projected,
		PassedThrough:  res.PassedThrough,
		Status:         "success",
	}
	if runErr != nil {
		e.Status = "error"
		e.Error = runErr.Error()
	}
	if err := store.Record(ctx, e); err != nil {
		log.Printf("history: %v", err)
	}
}

// listHistory prints up to n recorded runs, newest first, one per line.
func listHistory(w io.Writer, path string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeFn, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := store.Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := e.Status
		if e.Error != "" {
			status += ": " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%d/%d samples\t%d written\t%s\n",
			e.StartedAt.Format(time.RFC3339),
			e.Duration.Truncate(time.Millisecond),
			e.Input, e.Output,
			e.MatchedSamples, e.TotalSamples,
			e.LinesWritten, status)
	}
	return nil
}

// mergeRun overlays non-zero flag values on top of a loaded config file.
func mergeRun(base, flags config.Run) config.Run {
	if flags.Job != "" {
		base.Job = flags.Job
	}
	if flags.Input != "" {
		base.Input = flags.Input
	}
	if flags.Output != "" {
		base.Output = flags.Output
	}
	if flags.Samples != "" {
		base.Samples = flags.Samples
	}
	if flags.Compress {
		base.Compress = true
	}
	if flags.History != "" {
		base.History = flags.History
	}
	if flags.Runtime.Workers != 0 {
		base.Runtime.Workers = flags.Runtime.Workers
	}
	if flags.Runtime.QueueCapacity != 0 {
		base.Runtime.QueueCapacity = flags.Runtime.QueueCapacity
	}
	return base
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
