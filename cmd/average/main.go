// Command average aligns groups of 2-D localizations onto each other by
// iterative rotational and translational cross-correlation and writes the
// aligned localizations back out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/particle-average/internal/average"
	"github.com/banshee-data/particle-average/internal/config"
	"github.com/banshee-data/particle-average/internal/locs"
	"github.com/banshee-data/particle-average/internal/plots"
	"github.com/banshee-data/particle-average/internal/render"
	"github.com/banshee-data/particle-average/internal/runstore"
	"github.com/banshee-data/particle-average/internal/version"
)

var (
	inPath       = flag.String("in", "", "Input CSV with x, y and group columns (required)")
	outPath      = flag.String("out", "", "Output CSV (defaults to <in>-averaged.csv)")
	configPath   = flag.String("config", "", "JSON config file (see config/average.defaults.json)")
	oversampling = flag.Float64("oversampling", 1, "Render pixels per coordinate unit (>= 1)")
	iterations   = flag.Int("iterations", 3, "Number of averaging iterations (>= 0)")
	prealign     = flag.Bool("prealign", true, "Centre each group on its centre of mass before averaging")
	mergeGroups  = flag.Bool("merge-groups", false, "Drop the group column from the output")
	offsetX      = flag.Float64("offset-x", 0, "Added to every x on output")
	offsetY      = flag.Float64("offset-y", 0, "Added to every y on output")
	runsDB       = flag.String("runs-db", "", "SQLite database recording run history (disabled if empty)")
	plotsDir     = flag.String("plots-dir", "", "Directory for PNG and HTML plots (disabled if empty)")
	debugListen  = flag.String("debug-listen", "", "Serve /debug/ pages with a SQL browser over -runs-db on this address")
	verbose      = flag.Bool("v", false, "Log run and iteration lifecycle")
	trace        = flag.Bool("trace", false, "Log every group alignment")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	in, out     string
	request     average.Request
	controller  average.Config
	prealign    bool
	write       writeOptions
	runsDB      string
	plotsDir    string
	debugListen string
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("average"))
		return
	}

	diag, traceW := io.Discard, io.Discard
	if *verbose {
		diag = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	average.SetLogWriters(os.Stderr, diag, traceW)
	runstore.SetLogWriters(os.Stderr, diag)

	opts, err := buildOptions()
	if err != nil {
		log.Fatalf("[average] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("[average] %v", err)
	}
}

// buildOptions merges the config file with flags; flags given on the
// command line win.
func buildOptions() (options, error) {
	if *inPath == "" {
		return options{}, errors.New("-in is required")
	}
	cfg := config.EmptyAverageConfig()
	if *configPath != "" {
		loaded, err := config.LoadAverageConfig(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["oversampling"] || cfg.Oversampling == nil {
		cfg.Oversampling = oversampling
	}
	if set["iterations"] || cfg.Iterations == nil {
		cfg.Iterations = iterations
	}
	if set["prealign"] || cfg.Prealign == nil {
		cfg.Prealign = prealign
	}
	if set["runs-db"] {
		cfg.RunsDB = runsDB
	}
	if set["plots-dir"] {
		cfg.PlotsDir = plotsDir
	}
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	out := *outPath
	if out == "" {
		out = defaultOutput(*inPath)
	}
	return options{
		in:  *inPath,
		out: out,
		request: average.Request{
			Oversampling: cfg.GetOversampling(),
			Iterations:   cfg.GetIterations(),
		},
		controller: average.Config{
			Workers:          cfg.GetWorkers(),
			WorkerFraction:   cfg.GetWorkerFraction(),
			ProgressInterval: cfg.GetProgressInterval(),
			MaxImagePixels:   cfg.GetMaxImagePixels(),
			EventBuffer:      cfg.GetEventBuffer(),
		},
		prealign:    cfg.GetPrealign(),
		write:       writeOptions{mergeGroups: *mergeGroups, offsetX: *offsetX, offsetY: *offsetY},
		runsDB:      cfg.GetRunsDB(),
		plotsDir:    cfg.GetPlotsDir(),
		debugListen: *debugListen,
	}, nil
}

func defaultOutput(in string) string {
	ext := filepath.Ext(in)
	return in[:len(in)-len(ext)] + "-averaged.csv"
}

// run loads the input, averages it and writes the outputs.
func run(ctx context.Context, opts options) error {
	if err := opts.request.Validate(); err != nil {
		return err
	}

	f, err := os.Open(opts.in)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	tbl, set, err := readTable(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", opts.in, err)
	}
	if opts.prealign {
		if _, _, err := locs.Prepare(set); err != nil {
			return err
		}
	} else {
		locs.Recenter(set)
	}
	log.Printf("[average] Loaded %d localizations from %s", set.Len(), opts.in)

	ctrl := average.New(opts.controller)
	defer ctrl.Close()
	if err := ctrl.Load(set); err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	var store *runstore.Store
	if opts.runsDB != "" {
		if store, err = runstore.Open(opts.runsDB); err != nil {
			return err
		}
		defer store.Close()
		if opts.debugListen != "" {
			stopDebug, err := serveDebug(store, opts.debugListen)
			if err != nil {
				return err
			}
			defer stopDebug()
		}
	} else if opts.debugListen != "" {
		log.Printf("[average] -debug-listen ignored without -runs-db")
	}

	var plotter *plots.IterationPlotter
	if opts.plotsDir != "" {
		plotter = plots.NewIterationPlotter()
		if err := plotter.Start(opts.plotsDir); err != nil {
			return err
		}
	}

	events, err := ctrl.Start(ctx, opts.request)
	if err != nil {
		return err
	}
	st := ctrl.Status()
	log.Printf("[average] Run %s: oversampling=%g iterations=%d groups=%d workers=%d",
		st.RunID, opts.request.Oversampling, opts.request.Iterations, st.Groups, st.Workers)

	var rec *runstore.Recorder
	if store != nil {
		rec, err = runstore.NewRecorder(store, runstore.Run{
			RunID:         st.RunID,
			Source:        opts.in,
			Oversampling:  opts.request.Oversampling,
			Iterations:    opts.request.Iterations,
			Groups:        st.Groups,
			Localizations: st.Localizations,
			Workers:       st.Workers,
			Radius:        ctrl.Radius(),
		})
		if err != nil {
			log.Printf("[average] run history disabled: %v", err)
			rec = nil
		}
	}

	runErr := consume(events, ctrl, rec, plotter)
	if plotter != nil {
		plotter.Stop()
	}
	if runErr != nil {
		return runErr
	}

	coords, err := ctrl.Coordinates()
	if err != nil {
		return err
	}
	if err := writeOutput(opts.out, tbl, coords, opts.write); err != nil {
		return err
	}
	log.Printf("[average] Wrote %s", opts.out)

	if plotter != nil {
		if err := writePlots(opts, ctrl, coords, plotter); err != nil {
			log.Printf("[average] plots: %v", err)
		}
	}
	return nil
}

// consume drains the event stream, logging progress and feeding the
// recorder and plotter. It returns the error of a failed run.
func consume(events <-chan average.Event, ctrl *average.Controller, rec *runstore.Recorder, plotter *plots.IterationPlotter) error {
	var runErr error
	for ev := range events {
		switch ev.Kind {
		case average.EventProgress:
			s := ev.Snapshot
			if s.Done {
				log.Printf("[average] Iteration %d/%d done in %v, spread %.4f, %d warnings, %d failures",
					s.Iteration, s.Iterations, s.Elapsed.Round(time.Millisecond), locs.Spread(s.Coordinates), s.Warnings, s.Failures)
			} else {
				log.Printf("[average] Iteration %d/%d, Group %d/%d", s.Iteration, s.Iterations, s.GroupsProcessed, s.Groups)
			}
		case average.EventGroupWarning:
			if *verbose {
				log.Printf("[average] warning: %v", ev.Err)
			}
		case average.EventGroupFailure:
			log.Printf("[average] group failed: %v", ev.Err)
		case average.EventStopped:
			if ev.Err != nil {
				log.Printf("[average] Stopped during iteration %d: %v", ev.Iteration, ev.Err)
			} else {
				log.Printf("[average] Done!")
			}
		case average.EventRunFailed:
			runErr = fmt.Errorf("run failed: %w", ev.Err)
		}

		if rec != nil {
			if ev.Kind == average.EventStopped || ev.Kind == average.EventRunFailed {
				rec.SetDropped(ctrl.Status().Dropped)
			}
			if err := rec.Observe(ev); err != nil {
				log.Printf("[average] run history: %v", err)
			}
		}
		if plotter != nil {
			plotter.Observe(ev)
		}
	}
	return runErr
}

func writeOutput(path string, tbl *table, coords *locs.Set, opts writeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := tbl.write(f, coords, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	return f.Close()
}

func writePlots(opts options, ctrl *average.Controller, coords *locs.Set, plotter *plots.IterationPlotter) error {
	img, err := ctrl.AverageImage(opts.request.Oversampling)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(opts.request.Oversampling, render.Symmetric(ctrl.Radius()))
	if err != nil {
		return err
	}
	var errs []error
	if err := plots.WriteAverageImage(filepath.Join(opts.plotsDir, "average.png"), r, img, "Average"); err != nil {
		errs = append(errs, err)
	}
	if err := plots.WriteScatterPNG(filepath.Join(opts.plotsDir, "aligned.png"), coords, "Aligned localizations"); err != nil {
		errs = append(errs, err)
	}
	if err := plots.WriteScatterHTML(filepath.Join(opts.plotsDir, "aligned.html"), coords, "Aligned localizations"); err != nil {
		errs = append(errs, err)
	}
	if _, err := plotter.GeneratePlots(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// serveDebug exposes the run history on addr until the returned func is called.
func serveDebug(store *runstore.Store, addr string) (func(), error) {
	mux := http.NewServeMux()
	if err := store.AttachDebugRoutes(mux); err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[average] debug server: %v", err)
		}
	}()
	log.Printf("[average] Debug pages on http://%s/debug/", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
