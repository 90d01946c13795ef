package plinko

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"
)

// RunState is the lifecycle state of a Simulation.
type RunState int

const (
	// StateReady: a held ball waits at the drop point.
	StateReady RunState = iota
	// StateRunning: the ball is falling toward its target bucket.
	StateRunning
	// StateSettled: the ball landed; Reset before the next Run. The ball may
	// still be bouncing inside its bucket, see Settling.
	StateSettled
	// StateTornDown: terminal.
	StateTornDown
)

func (s RunState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSettled:
		return "settled"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Config constructs a Simulation.
type Config struct {
	Rows        int
	Multipliers []float64
	OnContact   ContactListener

	// MultiplierOverride replaces the multiplier carried by bucket events
	// for every run (a RunRequest override takes precedence). It never
	// changes which bucket the ball enters.
	MultiplierOverride *float64

	// DropJitter bounds the horizontal offset applied on reset. Zero uses
	// DefaultDropJitter; it may not exceed a quarter of the peg spacing.
	DropJitter float64

	Physics  *Physics
	Steering *Steering

	// MaxRunSteps is the sub-step budget before a run is force-settled.
	// Zero uses DefaultMaxRunSteps.
	MaxRunSteps int
}

// RunRequest asks for a drop that lands on Multiplier.
type RunRequest struct {
	Multiplier float64 `json:"multiplier"`
	// Bucket picks one of several buckets sharing Multiplier. Nil selects
	// the matching bucket nearest the board centre.
	Bucket *int `json:"bucket,omitempty"`
	// MultiplierOverride replaces the value carried by the bucket event.
	MultiplierOverride *float64 `json:"multiplier_override,omitempty"`
}

// Frame is a sampled ball position of a headless drop.
type Frame struct {
	Step     int  `json:"step"`
	Position Vec2 `json:"position"`
}

// Result describes a settled run.
type Result struct {
	Bucket            int            `json:"bucket"`
	Multiplier        float64        `json:"multiplier"`
	DisplayMultiplier float64        `json:"display_multiplier"`
	Forced            bool           `json:"forced"`
	Steps             int            `json:"steps"`
	Seed              Seed           `json:"seed"`
	Frames            []Frame        `json:"frames,omitempty"`
	Events            []ContactEvent `json:"events,omitempty"`
}

// Stats are cumulative counters over the simulation's lifetime.
type Stats struct {
	Runs          uint64 `json:"runs"`
	Settled       uint64 `json:"settled"`
	ForcedSettles uint64 `json:"forced_settles"`
	Cancelled     uint64 `json:"cancelled"`
}

type activeRun struct {
	request  RunRequest
	target   Bucket
	override *float64
	steps    int
	slow     int
}

// recorder collects frames and events during a headless drop.
type recorder struct {
	every  int
	frames []Frame
	events []ContactEvent
}

// Simulation composes the board, the world, the classifier and the
// steering controller behind a reset/run/step lifecycle. It is not safe for
// concurrent use: exactly one caller steps it and reads its snapshots.
type Simulation struct {
	cfg      Config
	physics  Physics
	steer    Steering
	listener ContactListener

	board      *Board
	world      *World
	classifier *classifier

	state    RunState
	seed     Seed
	jitter   *jitterStream
	run      *activeRun
	steering *steering
	result   *Result
	rec      *recorder

	// settling counts the sub-steps a landed ball has spent coming to rest;
	// -1 once it is held.
	settling int

	// gen changes on every Reset, Configure and Teardown so a Step in
	// progress can tell that its run was cancelled from a listener.
	gen uint64

	runs, settled, forced, cancelled atomic.Uint64
}

// New builds the board described by cfg and returns a simulation with a
// ball held at the drop point.
func New(cfg Config) (*Simulation, error) {
	physics := DefaultPhysics()
	if cfg.Physics != nil {
		physics = *cfg.Physics
	}
	if err := physics.Validate(); err != nil {
		return nil, err
	}
	steer := DefaultSteering()
	if cfg.Steering != nil {
		steer = *cfg.Steering
	}
	if err := steer.Validate(); err != nil {
		return nil, err
	}
	if cfg.DropJitter == 0 {
		cfg.DropJitter = DefaultDropJitter
	}
	if math.IsNaN(cfg.DropJitter) || cfg.DropJitter < 0 || cfg.DropJitter > PegSpacing/4 {
		return nil, configErrorf("drop_jitter", "must be in [0, %v], got %v", PegSpacing/4, cfg.DropJitter)
	}
	if cfg.MaxRunSteps == 0 {
		cfg.MaxRunSteps = DefaultMaxRunSteps
	}
	if cfg.MaxRunSteps < 0 {
		return nil, configErrorf("max_run_steps", "must be positive, got %d", cfg.MaxRunSteps)
	}
	if o := cfg.MultiplierOverride; o != nil && (math.IsNaN(*o) || math.IsInf(*o, 0) || *o < 0) {
		return nil, configErrorf("multiplier_override", "must be a finite non-negative number, got %v", *o)
	}

	s := &Simulation{
		cfg:      cfg,
		physics:  physics,
		steer:    steer,
		listener: cfg.OnContact,
	}
	if err := s.Configure(cfg.Rows, cfg.Multipliers); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure rebuilds the board. On error the previous board, ball and run
// are left exactly as they were. On success any run in flight is cancelled
// and a fresh ball is held at the new drop point.
func (s *Simulation) Configure(rows int, multipliers []float64) error {
	if s.state == StateTornDown {
		return ErrTornDown
	}
	board, err := BuildBoard(rows, multipliers)
	if err != nil {
		return err
	}
	world, err := NewWorld(board, s.physics)
	if err != nil {
		return err
	}

	s.board = board
	s.world = world
	s.classifier = newClassifier(board)
	s.cfg.Rows = rows
	s.cfg.Multipliers = board.Multipliers()
	log.Printf("[PLINKO] board configured: rows=%d buckets=%d size=%.0fx%.0f", rows, len(board.Buckets), board.Width, board.Height)

	s.Reset()
	return nil
}

// Reset cancels any run, discards the ball and holds a new one near the
// drop point. It uses a fresh random seed.
func (s *Simulation) Reset() {
	s.ResetWithSeed(NewSeed("", 0))
}

// ResetWithSeed is Reset with a caller-chosen seed, which makes the next
// drop reproducible.
func (s *Simulation) ResetWithSeed(seed Seed) {
	if s.state == StateTornDown {
		return
	}
	if s.state == StateRunning {
		s.cancelled.Add(1)
	}
	s.gen++
	s.seed = seed
	s.jitter = newJitterStream(seed)
	s.run = nil
	s.steering = nil
	s.result = nil
	s.settling = -1

	drop := s.board.DropPoint
	drop.X += s.jitter.Symmetric(s.cfg.DropJitter)
	s.world.ResetBall(drop)
	s.classifier.reset(nil)
	s.state = StateReady
}

// Run starts a drop toward the bucket carrying multiplier.
func (s *Simulation) Run(multiplier float64) error {
	return s.RunWith(RunRequest{Multiplier: multiplier})
}

// RunWith starts a drop described by req. It fails with an OutcomeError
// before touching any state if the multiplier (or requested bucket) is not
// on the board, and with ErrRunActive unless the simulation was reset since
// the last run.
func (s *Simulation) RunWith(req RunRequest) error {
	if s.state == StateTornDown {
		return ErrTornDown
	}
	target, err := s.resolveTarget(req)
	if err != nil {
		return err
	}
	override := s.cfg.MultiplierOverride
	if o := req.MultiplierOverride; o != nil {
		if math.IsNaN(*o) || math.IsInf(*o, 0) || *o < 0 {
			return &OutcomeError{Multiplier: req.Multiplier, Reason: fmt.Sprintf("override %v is not a finite non-negative number", *o)}
		}
		override = o
	}
	if s.state != StateReady {
		return ErrRunActive
	}

	ball := s.world.Ball()
	s.run = &activeRun{request: req, target: target, override: override}
	s.steering = newSteering(s.board, target, ball.Position, s.steer, s.jitter)
	s.classifier.reset(override)
	s.world.Release()
	s.state = StateRunning
	s.runs.Add(1)
	return nil
}

// resolveTarget maps a request to a bucket. Among several buckets with the
// same multiplier the one nearest the centre wins, lower index on ties, so
// the same request always lands in the same bucket.
func (s *Simulation) resolveTarget(req RunRequest) (Bucket, error) {
	if math.IsNaN(req.Multiplier) || math.IsInf(req.Multiplier, 0) {
		return Bucket{}, &OutcomeError{Multiplier: req.Multiplier, Reason: "not a finite number"}
	}
	candidates := s.board.BucketsFor(req.Multiplier)
	if len(candidates) == 0 {
		return Bucket{}, &OutcomeError{Multiplier: req.Multiplier, Reason: "not in the multiplier table"}
	}

	if req.Bucket != nil {
		for _, idx := range candidates {
			if idx == *req.Bucket {
				return s.board.Buckets[idx], nil
			}
		}
		return Bucket{}, &OutcomeError{Multiplier: req.Multiplier, Reason: fmt.Sprintf("bucket %d does not carry this multiplier", *req.Bucket)}
	}

	mid := float64(len(s.board.Buckets)-1) / 2
	best := candidates[0]
	for _, idx := range candidates[1:] {
		if math.Abs(float64(idx)-mid) < math.Abs(float64(best)-mid) {
			best = idx
		}
	}
	return s.board.Buckets[best], nil
}

// Step advances the simulation by elapsed real time. It is safe to call at
// irregular intervals, after settling and after teardown, and never panics.
func (s *Simulation) Step(elapsed time.Duration) {
	s.advance(elapsed.Seconds())
}

// Settling reports whether a landed ball is still bouncing inside its
// bucket. The outcome is already final.
func (s *Simulation) Settling() bool {
	return s.state == StateSettled && s.settling >= 0
}

func (s *Simulation) advance(seconds float64) {
	if s.state != StateRunning && !s.Settling() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PLINKO] recovered fault during step: %v", r)
			switch {
			case s.state == StateRunning:
				s.forceSettle("fault")
			case s.Settling():
				s.rest(true)
			}
		}
	}()
	s.world.Step(seconds, s)
}

func (s *Simulation) beforeSubStep(w *World) {
	if s.steering != nil {
		s.steering.apply(w.Ball())
	}
}

func (s *Simulation) afterSubStep(w *World, collisions []Collision) bool {
	if s.Settling() {
		return s.settleStep(w)
	}
	r := s.run
	if r == nil || s.state != StateRunning {
		return false
	}
	r.steps++
	gen := s.gen
	ball := w.Ball()

	for _, ev := range s.classifier.classify(collisions, r.steps) {
		if ev.Bucket != nil {
			if ev.Bucket.Index != r.target.Index {
				s.forceSettle(fmt.Sprintf("entered bucket %d", ev.Bucket.Index))
				return false
			}
			s.land(ev)
			return false
		}
		if ev.Peg != nil && s.steering != nil {
			s.steering.onPegContact(ball)
		}
		s.emit(ev)
		if s.gen != gen || s.state != StateRunning {
			return false
		}
	}

	switch {
	case w.Faulted():
		s.forceSettle("non-finite or escaped ball")
		return false
	case r.steps >= s.cfg.MaxRunSteps:
		s.forceSettle("step budget exhausted")
		return false
	}

	if ball.Velocity.Magnitude() < StuckSpeed {
		r.slow++
		if r.slow >= StuckWindow {
			s.forceSettle("ball stalled")
			return false
		}
	} else {
		r.slow = 0
	}

	if s.rec != nil && s.rec.every > 0 && r.steps%s.rec.every == 0 {
		s.rec.frames = append(s.rec.frames, Frame{Step: r.steps, Position: ball.Position})
	}
	return true
}

// land finishes a run whose ball reached its target bucket. The ball keeps
// moving between the bucket walls until it comes to rest.
func (s *Simulation) land(ev ContactEvent) {
	ball := s.world.Ball()
	ball.Position.X = s.insideTarget(ball.Position.X, ball.Radius)
	ball.Accel = Vec2{}
	s.steering = nil
	s.settling = 0
	s.finish(ev)
}

// settleStep runs after each sub-step of a landed ball. It holds the ball
// once it lies still on the floor or the settle budget runs out.
func (s *Simulation) settleStep(w *World) bool {
	s.settling++
	ball := w.Ball()
	if s.rec != nil && s.rec.every > 0 && s.settling%s.rec.every == 0 {
		s.rec.frames = append(s.rec.frames, Frame{Step: s.result.Steps + s.settling, Position: ball.Position})
	}
	switch {
	case w.Faulted():
		s.rest(true)
		return false
	case ball.Velocity.Magnitude() < StuckSpeed && ball.Position.Y+ball.Radius >= s.board.FloorY()-1:
		s.rest(false)
		return false
	case s.settling >= DefaultMaxSettleSteps:
		s.rest(true)
		return false
	}
	return true
}

// rest holds the landed ball inside its bucket. drop lays it on the floor
// instead of where it is.
func (s *Simulation) rest(drop bool) {
	ball := s.world.Ball()
	s.settling = -1
	if ball == nil || s.run == nil {
		return
	}
	pos := ball.Position
	pos.X = s.insideTarget(pos.X, ball.Radius)
	if drop || !pos.IsFinite() {
		pos.Y = s.board.FloorY() - ball.Radius
	}
	if !pos.IsFinite() {
		pos.X = s.run.target.CenterX()
	}
	s.world.PlaceBall(pos)
}

// insideTarget clamps x so a ball of radius r fits between the dividers of
// the target bucket.
func (s *Simulation) insideTarget(x, r float64) float64 {
	bk := s.run.target
	return math.Max(bk.MinX+DividerThickness/2+r, math.Min(bk.MaxX-DividerThickness/2-r, x))
}

// forceSettle places the ball straight into the target bucket. This is the
// recovery for every run the physics could not finish on its own.
func (s *Simulation) forceSettle(reason string) {
	r := s.run
	if r == nil {
		return
	}
	s.forced.Add(1)
	log.Printf("[PLINKO] simulation stuck (%s) after %d steps; force-settling into bucket %d", reason, r.steps, r.target.Index)

	s.settling = -1
	s.world.PlaceBall(Vec2{X: r.target.CenterX(), Y: s.board.FloorY() - s.board.BallRadius})
	s.finish(s.classifier.forcedLanding(r.target.Index, r.steps))
}

func (s *Simulation) finish(ev ContactEvent) {
	r := s.run
	s.state = StateSettled
	s.settled.Add(1)
	s.result = &Result{
		Bucket:            ev.Bucket.Index,
		Multiplier:        r.target.Multiplier,
		DisplayMultiplier: ev.Bucket.Multiplier,
		Forced:            ev.Forced,
		Steps:             r.steps,
		Seed:              s.seed,
	}
	s.emit(ev)
}

func (s *Simulation) emit(ev ContactEvent) {
	if s.rec != nil {
		s.rec.events = append(s.rec.events, ev)
	}
	if s.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PLINKO] listener fault on %s event at step %d: %v", ev.Kind(), ev.Step, r)
		}
	}()
	s.listener.OnContact(ev)
}

// Drop resets with seed (a fresh one if nil), runs req and steps the world
// without real time until the ball settles. It is the headless form of
// Reset, Run and Step used to compute a path on the server. frameEvery > 0
// samples the ball position every frameEvery sub-steps.
func (s *Simulation) Drop(req RunRequest, seed *Seed, frameEvery int) (*Result, error) {
	if s.state == StateTornDown {
		return nil, ErrTornDown
	}
	if _, err := s.resolveTarget(req); err != nil {
		return nil, err
	}
	if seed != nil {
		s.ResetWithSeed(*seed)
	} else {
		s.Reset()
	}

	rec := &recorder{every: frameEvery}
	s.rec = rec
	defer func() { s.rec = nil }()

	if err := s.RunWith(req); err != nil {
		return nil, err
	}
	if b := s.world.Ball(); frameEvery > 0 && b != nil {
		rec.frames = append(rec.frames, Frame{Step: 0, Position: b.Position})
	}

	dt := s.physics.FixedStep
	for i := 0; s.state == StateRunning && i <= s.cfg.MaxRunSteps; i++ {
		s.advance(dt)
	}
	if s.state == StateRunning {
		s.forceSettle("headless drop did not finish")
	}
	for i := 0; s.Settling() && i <= DefaultMaxSettleSteps; i++ {
		s.advance(dt)
	}
	if s.Settling() {
		s.rest(true)
	}
	if s.state != StateSettled || s.result == nil {
		return nil, ErrRunActive
	}

	if b := s.world.Ball(); frameEvery > 0 && b != nil {
		rec.frames = append(rec.frames, Frame{Step: s.world.Steps(), Position: b.Position})
	}
	res := *s.result
	res.Frames = rec.frames
	res.Events = rec.events
	return &res, nil
}

// Bodies returns copies of every body for rendering. It returns nil after
// Teardown.
func (s *Simulation) Bodies() []BodySnapshot {
	if s.world == nil {
		return nil
	}
	return s.world.Bodies()
}

// Ball returns a copy of the ball state.
func (s *Simulation) Ball() (BodySnapshot, bool) {
	if s.world == nil {
		return BodySnapshot{}, false
	}
	return s.world.BallSnapshot()
}

// Board returns a copy of the current static geometry.
func (s *Simulation) Board() *Board {
	if s.board == nil {
		return nil
	}
	return s.board.Clone()
}

// Width is the board width in board units.
func (s *Simulation) Width() float64 {
	if s.board == nil {
		return 0
	}
	return s.board.Width
}

// Height is the board height in board units.
func (s *Simulation) Height() float64 {
	if s.board == nil {
		return 0
	}
	return s.board.Height
}

// State returns the lifecycle state.
func (s *Simulation) State() RunState {
	return s.state
}

// Seed returns the seed of the current ball.
func (s *Simulation) Seed() Seed {
	return s.seed
}

// Result returns the outcome of the current run once it has settled.
func (s *Simulation) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Stats returns the lifetime counters. It may be called from any goroutine.
func (s *Simulation) Stats() Stats {
	return Stats{
		Runs:          s.runs.Load(),
		Settled:       s.settled.Load(),
		ForcedSettles: s.forced.Load(),
		Cancelled:     s.cancelled.Load(),
	}
}

// Teardown stops any run, drops the ball and the listener. Further calls
// to any method are safe no-ops or return ErrTornDown.
func (s *Simulation) Teardown() {
	if s.state == StateTornDown {
		return
	}
	if s.state == StateRunning {
		s.cancelled.Add(1)
	}
	s.gen++
	s.state = StateTornDown
	s.listener = nil
	s.run = nil
	s.steering = nil
	s.rec = nil
	s.settling = -1
	if s.world != nil {
		s.world.RemoveBall()
	}
	s.world = nil
}
