// Command arcwelder rewrites a gcode file, replacing runs of linear
// moves with fitted circular arcs.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"arcwelder/config"
	"arcwelder/gcode"
	"arcwelder/stats"
	"arcwelder/welder"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("arcwelder", flag.ContinueOnError)

	output := fs.StringP("output", "o", "", "target file path (defaults to <source>.arcwelded.gcode)")
	inPlace := fs.BoolP("in-place", "i", false, "overwrite the source file (write to a sibling .tmp, then rename)")
	configPath := fs.StringP("config", "c", "", "path to a YAML or JSON settings file")
	resolution := fs.Float64P("resolution-mm", "r", 0, "max perpendicular deviation between arc and polyline")
	pathTolerance := fs.Float64("path-tolerance-percent", 0, "allowed relative error between arc length and polyline length")
	maxRadius := fs.Float64("max-radius-mm", 0, "reject circles larger than this")
	allow3D := fs.Bool("allow-3d-arcs", false, "permit Z change within an arc")
	allowTravel := fs.Bool("allow-travel-arcs", false, "permit arcs with zero extrusion")
	verbose := fs.BoolP("verbose", "v", false, "enable debug-level logging")
	quiet := fs.BoolP("quiet", "q", false, "suppress progress output")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "arcwelder: %v\n", err)
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "arcwelder: usage: arcwelder [flags] <source.gcode>")
		return 2
	}
	source := fs.Arg(0)

	settings, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arcwelder: %v\n", err)
		return 2
	}
	applyFlagOverrides(&settings, fs, *resolution, *pathTolerance, *maxRadius, *allow3D, *allowTravel)
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "arcwelder: %v\n", err)
		return 2
	}

	logLevel := zerolog.InfoLevel
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).
		With().Timestamp().Logger()

	target, finish, err := resolveTarget(source, *output, *inPlace)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open target")
		return 1
	}

	in, err := os.Open(source)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open source")
		return 1
	}
	defer in.Close()

	sourceSize := int64(0)
	if fi, err := in.Stat(); err == nil {
		sourceSize = fi.Size()
	}

	runID := uuid.New()
	tracker := gcode.NewTracker(settings.G90G91InfluencesExtruder)
	wld := welder.New(settings, tracker, logger, runID)

	var cancelled atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		if _, ok := <-sigCh; ok {
			cancelled.Store(true)
		}
	}()
	defer signal.Stop(sigCh)

	counters := &stats.Counters{}
	reporter := stats.NewReporter(runID, time.Duration(settings.NotificationPeriodSeconds*float64(time.Second)), sourceSize, counters, func(p stats.Progress) bool {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "\rarcwelder [%s] %.1f%% | %d arcs | %d points compressed", p.RunID.String()[:8], p.PercentComplete, p.ArcsCreated, p.PointsCompressed)
		}
		return !cancelled.Load()
	})

	result, err := wld.Process(in, target, reporter)
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		logger.Error().Err(err).Msg("processing failed")
		finish(false)
		return 1
	}

	if cerr := finish(true); cerr != nil {
		logger.Error().Err(cerr).Msg("failed to finalize target")
		return 1
	}

	if result.Cancelled {
		logger.Info().Msg("run cancelled")
		return 130
	}

	logger.Info().
		Int64("lines", result.Counters.LinesProcessed).
		Int64("arcs_created", result.Counters.ArcsCreated).
		Int64("points_compressed", result.Counters.PointsCompressed).
		Int64("warnings", result.Counters.Warnings).
		Msg("run complete")
	return 0
}

func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Settings{}, fmt.Errorf("read config: %w", err)
	}
	return config.Load(data, path)
}

func applyFlagOverrides(s *config.Settings, fs *flag.FlagSet, resolution, pathTolerance, maxRadius float64, allow3D, allowTravel bool) {
	if fs.Changed("resolution-mm") {
		s.ResolutionMM = resolution
	}
	if fs.Changed("path-tolerance-percent") {
		s.PathTolerancePercent = pathTolerance
	}
	if fs.Changed("max-radius-mm") {
		s.MaxRadiusMM = maxRadius
	}
	if fs.Changed("allow-3d-arcs") {
		s.Allow3DArcs = allow3D
	}
	if fs.Changed("allow-travel-arcs") {
		s.AllowTravelArcs = allowTravel
	}
}

// resolveTarget opens the output destination. For --in-place it writes
// to a sibling *.tmp file and returns a finish func that renames it over
// the source on success, so a failed run never clobbers the input.
func resolveTarget(source, output string, inPlace bool) (io.Writer, func(success bool) error, error) {
	if inPlace {
		tmpPath := source + ".tmp"
		f, err := os.Create(tmpPath)
		if err != nil {
			return nil, nil, err
		}
		return f, func(success bool) error {
			cerr := f.Close()
			if !success {
				os.Remove(tmpPath)
				return cerr
			}
			if cerr != nil {
				return cerr
			}
			return os.Rename(tmpPath, source)
		}, nil
	}

	path := output
	if path == "" {
		ext := filepath.Ext(source)
		path = source[:len(source)-len(ext)] + ".arcwelded" + ext
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func(success bool) error {
		cerr := f.Close()
		if !success {
			os.Remove(path)
		}
		return cerr
	}, nil
}
