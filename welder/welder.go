// Package welder implements the outer state machine: the driving loop
// that reads parsed commands, feeds candidate points to the fitter, and
// decides between extending the current arc, committing it, or flushing
// the buffered lines verbatim.
package welder

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"arcwelder/buffer"
	"arcwelder/config"
	"arcwelder/emitter"
	"arcwelder/fitter"
	"arcwelder/gcode"
	"arcwelder/geometry"
	"arcwelder/stats"
)

// Result is the outcome of a Process call.
type Result struct {
	Success   bool
	Cancelled bool
	Message   string
	Progress  stats.Progress
	Counters  stats.Counters
}

// Welder owns the fitter, unwritten-command buffer, emitter configuration,
// and statistics for one run. The kinematic tracker, logger, and progress
// callback are all borrowed (passed in at construction); there is no
// package-level state.
type Welder struct {
	settings config.Settings
	tracker  *gcode.Tracker
	logger   zerolog.Logger
	runID    uuid.UUID

	fit      *fitter.Fitter
	commands *buffer.Commands

	precision emitter.Precision

	previousFeedrate     float64
	havePreviousFeedrate bool
	previousAbsoluteE    bool
	haveExtrusionSign    bool
	extrusionSign        int // -1 retract, 0 travel, 1 extrude

	counters stats.Counters
}

// New creates a Welder. tracker is borrowed and must be freshly
// constructed (absolute XYZ, absolute E, mm) for the run. logger may be
// the zero zerolog.Logger (writes nowhere).
func New(settings config.Settings, tracker *gcode.Tracker, logger zerolog.Logger, runID uuid.UUID) *Welder {
	return &Welder{
		settings: settings,
		tracker:  tracker,
		logger:   logger,
		runID:    runID,
		fit: fitter.New(fitter.Config{
			MinSegments:          settings.MinArcSegments,
			MaxSegments:          settings.MaxArcSegments,
			ResolutionMM:         settings.ResolutionMM,
			PathTolerancePercent: settings.PathTolerancePercent,
			MaxRadiusMM:          settings.MaxRadiusMM,
			Allow3DArcs:          settings.Allow3DArcs,
		}),
		commands: buffer.NewCommands(settings.MaxArcSegments),
		precision: emitter.Precision{
			XYZ: settings.DefaultXYZPrecision,
			E:   settings.DefaultEPrecision,
		},
	}
}

// Process reads gcode lines from r, rewrites them, and writes the result
// to out. reporter is ticked after every line and may be nil to disable
// progress callbacks entirely.
func (w *Welder) Process(r io.Reader, out io.Writer, reporter *stats.Reporter) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	tok := gcode.NewTokenizer()
	bw := bufio.NewWriter(out)

	for scanner.Scan() {
		line := scanner.Text()
		w.counters.LinesProcessed++
		w.counters.SourceBytes += int64(len(line)) + 1

		cmd, err := tok.ParseLine(line)
		if err != nil {
			w.counters.Warnings++
			w.logger.Warn().Int("line", cmd.Line).Msg("malformed gcode line, passing through")
			if werr := w.flush(bw); werr != nil {
				return w.fail(werr)
			}
			if werr := w.writeRaw(bw, line); werr != nil {
				return w.fail(werr)
			}
			continue
		}

		if !cmd.IsBlankOrComment() {
			w.counters.GcodesProcessed++
		}

		if err := w.handleCommand(bw, cmd, line); err != nil {
			return w.fail(err)
		}

		if reporter != nil && !reporter.Tick() {
			if err := w.flush(bw); err != nil {
				return w.fail(err)
			}
			if err := bw.Flush(); err != nil {
				return w.fail(err)
			}
			return Result{Success: true, Cancelled: true, Progress: reporter.Final(), Counters: w.counters}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return w.fail(fmt.Errorf("welder: read source: %w", err))
	}

	if err := w.finalFlush(bw); err != nil {
		return w.fail(err)
	}
	if err := bw.Flush(); err != nil {
		return w.fail(fmt.Errorf("welder: write target: %w", err))
	}

	var progress stats.Progress
	if reporter != nil {
		progress = reporter.Final()
	}
	return Result{Success: true, Progress: progress, Counters: w.counters}, nil
}

func (w *Welder) fail(err error) (Result, error) {
	return Result{Success: false, Message: err.Error(), Counters: w.counters}, err
}

// handleCommand classifies the command and either forwards it, attempts
// an arc extension, or flushes. Only a G0/G1 that actually moves in XY
// can extend an arc; everything else terminates the current candidate.
func (w *Welder) handleCommand(out *bufio.Writer, cmd *gcode.Command, raw string) error {
	prevPos, curPos, eRelative := w.tracker.Apply(cmd)

	switch {
	case cmd.IsG(0) || cmd.IsG(1):
		dxy := math.Hypot(curPos.X-prevPos.X, curPos.Y-prevPos.Y)
		if dxy > 0 {
			return w.attemptExtension(out, cmd, raw, curPos, eRelative)
		}
		return w.flushAndForward(out, cmd, raw)
	default:
		return w.flushAndForward(out, cmd, raw)
	}
}

// flushAndForward drains any buffered candidate arc verbatim, then writes
// cmd's original line unchanged. The fitter is re-anchored at
// the tracker's post-command position: the forwarded line may itself have
// moved the machine (a passthrough G2/G3, a Z-only G1, a G92), and an
// anchor left at the pre-command position would reject a following move
// that returns to it as a zero-length segment.
func (w *Welder) flushAndForward(out *bufio.Writer, cmd *gcode.Command, raw string) error {
	if err := w.flush(out); err != nil {
		return err
	}
	w.trackDynamicPrecision(cmd)
	if cmd.Has('F') {
		w.previousFeedrate = cmd.Get('F', w.previousFeedrate)
		w.havePreviousFeedrate = true
	}
	if err := w.writeRaw(out, raw); err != nil {
		return err
	}
	pos := w.tracker.Position()
	w.fit.AnchorAt(geometry.Point{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		E:                pos.E,
		ExtruderRelative: !w.tracker.AbsoluteE(),
	})
	w.previousAbsoluteE = w.tracker.AbsoluteE()
	w.haveExtrusionSign = false
	return nil
}

// attemptExtension runs the pre-filters, then fitter.TryAddPoint, then
// the Added/Rejected/BufferFull handling.
//
// A pre-filter match means this point can never join any arc (it is
// disqualified by a non-geometric constraint, not a fit failure), so it
// is committed/flushed past and then forwarded verbatim itself, with the
// fresh fitter anchored at its own position. Anchoring there, rather
// than at whatever the old buffer's last point was, avoids retrying an
// unfittable point against a stale anchor forever. A geometric rejection
// instead retries the same point against the fresh fitter, since the
// point may well start the next arc.
func (w *Welder) attemptExtension(out *bufio.Writer, cmd *gcode.Command, raw string, pos gcode.Position, eRelative float64) error {
	sign := signOf(eRelative)

	p := geometry.Point{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		ERelative:        eRelative,
		E:                pos.E,
		ExtruderRelative: !w.tracker.AbsoluteE(),
		Line:             cmd.Line,
	}

	if w.disqualifies(cmd, pos, sign, eRelative) {
		if err := w.commitOrFlush(out); err != nil {
			return err
		}
		return w.forwardAsAnchor(out, cmd, raw, p)
	}

	isAnchor := w.fit.Count() == 0

	result := w.fit.TryAddPoint(p)
	switch result {
	case fitter.Added:
		w.previousAbsoluteE = w.tracker.AbsoluteE()
		w.trackDynamicPrecision(cmd)
		if cmd.Has('F') {
			w.previousFeedrate = cmd.Get('F', w.previousFeedrate)
			w.havePreviousFeedrate = true
		}
		if isAnchor {
			// The fitter's very first point is the anchor (the previous
			// committed endpoint, per the GLOSSARY) and must reach the
			// target immediately: it is never part of the unwritten-
			// command buffer, so commit()'s Reset would otherwise
			// silently drop the line that put the machine there.
			w.haveExtrusionSign = false
			return w.writeRaw(out, raw)
		}
		if !w.haveExtrusionSign {
			w.extrusionSign = sign
			w.haveExtrusionSign = true
		}
		w.commands.Append(buffer.UnwrittenCommand{Raw: raw, Command: cmd, ExtruderOffsetE: pos.E})
		// The fitter may have slid its window forward (popped its anchor)
		// while accepting this point. Any line whose endpoint slid out of
		// the window can no longer be part of an arc and must reach the
		// target now, keeping the unwritten buffer at exactly one command
		// per non-anchor point.
		for w.commands.Count() > w.fit.Count()-1 {
			uc, ok := w.commands.PopFront()
			if !ok {
				break
			}
			if err := w.writeRaw(out, uc.Raw); err != nil {
				return err
			}
		}
		return nil
	default:
		if err := w.commitOrFlush(out); err != nil {
			return err
		}
		return w.attemptExtension(out, cmd, raw, pos, eRelative)
	}
}

// disqualifies evaluates the pre-filter list: conditions under which the
// incoming point can never be part of the current (or any immediately
// following) arc, regardless of geometric fit.
func (w *Welder) disqualifies(cmd *gcode.Command, pos gcode.Position, sign int, eRelative float64) bool {
	switch {
	case w.havePreviousFeedrate && cmd.Has('F') && cmd.Get('F', 0) != w.previousFeedrate:
		return true
	case w.fit.Count() > 0 && w.previousAbsoluteE != w.tracker.AbsoluteE():
		return true
	case w.haveExtrusionSign && sign != w.extrusionSign:
		return true
	case !w.settings.AllowTravelArcs && sign == 0:
		return true
	case !w.settings.Allow3DArcs && w.fit.Count() > 0 && !zEqual(pos.Z, w.lastBufferedZ()):
		return true
	case w.fit.Count() >= 2 && w.exceedsExtrusionVariance(eRelative, geometry.XYDistance(w.lastBufferedPoint(), geometry.Point{X: pos.X, Y: pos.Y})):
		return true
	}
	return false
}

// forwardAsAnchor writes cmd's original line unchanged and anchors a fresh
// fitter buffer at p, since p itself cannot join an arc but still updates
// the machine's position for whatever comes next.
func (w *Welder) forwardAsAnchor(out *bufio.Writer, cmd *gcode.Command, raw string, p geometry.Point) error {
	w.trackDynamicPrecision(cmd)
	if cmd.Has('F') {
		w.previousFeedrate = cmd.Get('F', w.previousFeedrate)
		w.havePreviousFeedrate = true
	}
	w.fit.AnchorAt(p)
	w.previousAbsoluteE = w.tracker.AbsoluteE()
	w.haveExtrusionSign = false
	return w.writeRaw(out, raw)
}

// commitOrFlush commits the current arc if the fitter holds a valid
// shape of sufficient size, otherwise aborts (flushes the buffered raw
// lines).
func (w *Welder) commitOrFlush(out *bufio.Writer) error {
	if w.fit.IsShape() && w.fit.Count() >= w.settings.MinArcSegments {
		return w.commit(out)
	}
	return w.flush(out)
}

// commit asks the fitter for the final arc, emits it (with any needed E
// resync first), and resets the buffers with the arc endpoint as the new
// anchor.
func (w *Welder) commit(out *bufio.Writer) error {
	arc, ok := w.fit.CommitArc()
	if !ok {
		return w.flush(out)
	}

	if err := w.maybeResync(out, arc); err != nil {
		return err
	}

	lines := emitter.Format(arc, emitter.Context{
		AbsoluteE:      w.tracker.AbsoluteE(),
		Precision:      w.precision,
		MaxGcodeLength: w.settings.MaxGcodeLength,
		Allow3DArcs:    w.settings.Allow3DArcs,
	})
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return fmt.Errorf("welder: write target: %w", err)
		}
		w.counters.TargetBytes += int64(len(l)) + 1
	}

	w.counters.ArcsCreated++
	w.counters.PointsCompressed += int64(w.commands.Count())

	w.commands.Reset(nil)
	w.haveExtrusionSign = false
	w.logger.Debug().
		Str("run_id", w.runID.String()).
		Float64("radius", arc.R).
		Int("lines", len(lines)).
		Msg("committed arc")
	return nil
}

// maybeResync emits a G92 E resync line before the arc only when the E
// value the emitted line will convey (the endpoint E quantized at the
// current E precision) would visibly drift from the tracker's E at that
// same endpoint. The comparison is against arc.End.E — the
// tracker's E when the endpoint was current — not the tracker's present
// E, which by commit time already includes the move that triggered the
// commit.
func (w *Welder) maybeResync(out *bufio.Writer, arc geometry.Arc) error {
	if !w.tracker.AbsoluteE() {
		return nil
	}
	unit := math.Pow(10, -float64(w.precision.E))
	emittedE := math.Round(arc.End.E/unit) * unit
	if math.Abs(emittedE-arc.End.E) <= 0.5*unit {
		return nil
	}
	line := fmt.Sprintf("G92 E%s", formatE(arc.End.E, w.precision.E))
	if _, err := fmt.Fprintln(out, line); err != nil {
		return fmt.Errorf("welder: write target: %w", err)
	}
	w.counters.TargetBytes += int64(len(line)) + 1
	return nil
}

// flush drains the unwritten-command buffer verbatim and resets the
// fitter anchored at its last buffered point.
func (w *Welder) flush(out *bufio.Writer) error {
	if w.commands.Count() == 0 && w.fit.Count() <= 1 {
		w.fit.AbortArc()
		return nil
	}
	for _, uc := range w.commands.Drain() {
		if err := w.writeRaw(out, uc.Raw); err != nil {
			return err
		}
	}
	w.fit.AbortArc()
	w.haveExtrusionSign = false
	return nil
}

func (w *Welder) finalFlush(out *bufio.Writer) error {
	if w.fit.IsShape() && w.fit.Count() >= w.settings.MinArcSegments {
		return w.commit(out)
	}
	return w.flush(out)
}

func (w *Welder) writeRaw(out *bufio.Writer, raw string) error {
	if _, err := fmt.Fprintln(out, raw); err != nil {
		return fmt.Errorf("welder: write target: %w", err)
	}
	w.counters.TargetBytes += int64(len(raw)) + 1
	return nil
}

// trackDynamicPrecision promotes the output precision for an axis to
// match the most fractional digits seen on it in the input, capped at 6.
// Precision never decreases.
func (w *Welder) trackDynamicPrecision(cmd *gcode.Command) {
	if !w.settings.AllowDynamicPrecision {
		return
	}
	for letter, raw := range cmd.Params {
		digits := fractionalDigits(raw)
		if digits > 6 {
			digits = 6
		}
		if letter == 'E' {
			if digits > w.precision.E {
				w.precision.E = digits
			}
		} else if letter == 'X' || letter == 'Y' || letter == 'Z' || letter == 'I' || letter == 'J' {
			if digits > w.precision.XYZ {
				w.precision.XYZ = digits
			}
		}
	}
}

// exceedsExtrusionVariance compares the candidate segment's extrusion
// rate (extrusion per mm of XY travel) against the arc's running mean
// rate.
func (w *Welder) exceedsExtrusionVariance(eRelative, segmentDistance float64) bool {
	if w.settings.ExtrusionRateVariancePercent <= 0 || segmentDistance <= 0 {
		return false
	}
	length := w.fit.PolylineLength()
	if length <= 0 {
		return false
	}
	meanRate := w.fit.ERelativeTotal() / length
	if meanRate == 0 {
		return false
	}
	rate := eRelative / segmentDistance
	return math.Abs(rate-meanRate)/math.Abs(meanRate) > w.settings.ExtrusionRateVariancePercent
}

func (w *Welder) lastBufferedZ() float64 {
	pts := w.fit.Points()
	if len(pts) == 0 {
		return w.tracker.Position().Z
	}
	return pts[len(pts)-1].Z
}

func (w *Welder) lastBufferedPoint() geometry.Point {
	pts := w.fit.Points()
	if len(pts) == 0 {
		pos := w.tracker.Position()
		return geometry.Point{X: pos.X, Y: pos.Y, Z: pos.Z}
	}
	return pts[len(pts)-1]
}

func signOf(v float64) int {
	const eps = 1e-10
	switch {
	case v > eps:
		return 1
	case v < -eps:
		return -1
	default:
		return 0
	}
}

func zEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func fractionalDigits(v float64) int {
	s := fmt.Sprintf("%.10f", math.Abs(v))
	dot := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return 0
	}
	digits := 0
	for i := len(s) - 1; i > dot; i-- {
		if s[i] != '0' {
			digits = i - dot
			break
		}
	}
	return digits
}

// formatE renders an E value the same way the emitter renders its
// parameters: fixed precision with trailing zeros trimmed.
func formatE(v float64, precision int) string {
	s := fmt.Sprintf("%.*f", precision, v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
