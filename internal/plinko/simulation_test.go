package plinko

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

const frame = time.Second / 60

// eventLog is a ContactListener that keeps every event.
type eventLog struct {
	events []ContactEvent
}

func (l *eventLog) OnContact(e ContactEvent) {
	l.events = append(l.events, e)
}

func (l *eventLog) buckets() []ContactEvent {
	var out []ContactEvent
	for _, e := range l.events {
		if e.Bucket != nil {
			out = append(out, e)
		}
	}
	return out
}

func newTestSimulation(t *testing.T, rows int, table []float64, l ContactListener) *Simulation {
	t.Helper()
	sim, err := New(Config{Rows: rows, Multipliers: table, OnContact: l})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sim
}

// stepUntilSettled steps with real-time frames and fails the test if the
// run does not finish, ball at rest, within the sub-step budget.
func stepUntilSettled(t *testing.T, sim *Simulation) {
	t.Helper()
	// 2000 run sub-steps plus 240 settle sub-steps at two per frame, plus slack.
	for i := 0; i < 1400 && (sim.State() == StateRunning || sim.Settling()); i++ {
		sim.Step(frame)
	}
	if sim.State() != StateSettled || sim.Settling() {
		t.Fatalf("run did not settle, state %s", sim.State())
	}
}

func TestSingleMultiplierBoardLands(t *testing.T) {
	log := &eventLog{}
	sim := newTestSimulation(t, 14, []float64{15}, log)

	if sim.State() != StateReady {
		t.Fatalf("new simulation state %s, want ready", sim.State())
	}
	if err := sim.Run(15); err != nil {
		t.Fatalf("Run(15): %v", err)
	}
	stepUntilSettled(t, sim)

	buckets := log.buckets()
	if len(buckets) != 1 {
		t.Fatalf("got %d bucket events, want 1", len(buckets))
	}
	if buckets[0].Bucket.Multiplier != 15 || !buckets[0].Plinko {
		t.Errorf("bucket event %+v", buckets[0])
	}

	ball, ok := sim.Ball()
	if !ok {
		t.Fatal("no ball after settling")
	}
	bk := sim.Board().Buckets[buckets[0].Bucket.Index]
	if !bk.Contains(ball.Position.X) {
		t.Errorf("ball x=%v outside bucket %d [%v, %v]", ball.Position.X, bk.Index, bk.MinX, bk.MaxX)
	}
	if ball.Velocity.Magnitude() > 1e-9 {
		t.Errorf("settled ball still moving at %+v", ball.Velocity)
	}

	// A settled ball stays put.
	before := ball.Position
	for i := 0; i < 60; i++ {
		sim.Step(frame)
	}
	if after, _ := sim.Ball(); after.Position != before {
		t.Errorf("settled ball moved from %+v to %+v", before, after.Position)
	}
	if n := len(log.buckets()); n != 1 {
		t.Errorf("got %d bucket events after idling, want 1", n)
	}
}

func TestRunsLandInTargetBucket(t *testing.T) {
	tables := map[int][]float64{
		8:  {5.6, 2.1, 1.1, 1, 0.5, 1, 1.1, 2.1, 5.6},
		12: {10, 3, 1.6, 1.4, 1.1, 1, 0.5, 1, 1.1, 1.4, 1.6, 3, 10},
		16: {16, 9, 2, 1.4, 1.4, 1.2, 1.1, 1, 0.5, 1, 1.1, 1.2, 1.4, 1.4, 2, 9, 16},
	}
	rng := rand.New(rand.NewSource(1))
	total, forced := 0, 0

	for rows, table := range tables {
		log := &eventLog{}
		sim := newTestSimulation(t, rows, table, log)
		runs := 334

		for i := 0; i < runs; i++ {
			target := rng.Intn(len(table))
			seed := Seed{ServerSeed: "landing", ClientSeed: "test", Nonce: uint64(i)}
			sim.ResetWithSeed(seed)
			log.events = nil

			idx := target
			if err := sim.RunWith(RunRequest{Multiplier: table[target], Bucket: &idx}); err != nil {
				t.Fatalf("rows=%d run %d: %v", rows, i, err)
			}
			stepUntilSettled(t, sim)

			res, ok := sim.Result()
			if !ok {
				t.Fatalf("rows=%d run %d: no result", rows, i)
			}
			if res.Bucket != target {
				t.Errorf("rows=%d run %d: landed in %d, want %d", rows, i, res.Bucket, target)
			}
			if res.Steps > DefaultMaxRunSteps {
				t.Errorf("rows=%d run %d: took %d steps", rows, i, res.Steps)
			}
			if b := log.buckets(); len(b) != 1 || b[0].Bucket.Index != target {
				t.Errorf("rows=%d run %d: bucket events %+v", rows, i, b)
			}
			if res.Forced {
				forced++
			}
			total++
		}
	}

	if total < 1000 {
		t.Fatalf("only %d runs", total)
	}
	// Forced settling is the recovery path, not the normal one.
	if float64(forced) > 0.05*float64(total) {
		t.Errorf("%d of %d runs were force-settled", forced, total)
	}
}

func TestInvalidOutcomeLeavesStateUntouched(t *testing.T) {
	log := &eventLog{}
	sim := newTestSimulation(t, 8, []float64{5.6, 2.1, 1.1, 1, 0.5, 1, 1.1, 2.1, 5.6}, log)
	before := sim.Bodies()
	seed := sim.Seed()

	for _, m := range []float64{3, -1, math.NaN(), math.Inf(1)} {
		err := sim.Run(m)
		if !errors.Is(err, ErrInvalidOutcome) {
			t.Errorf("Run(%v) = %v, want ErrInvalidOutcome", m, err)
		}
		var oe *OutcomeError
		if !errors.As(err, &oe) {
			t.Errorf("Run(%v) error is %T", m, err)
		}
	}
	wrong := 0
	if err := sim.RunWith(RunRequest{Multiplier: 1.1, Bucket: &wrong}); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("bucket without that multiplier: %v", err)
	}

	if sim.State() != StateReady {
		t.Errorf("state %s, want ready", sim.State())
	}
	if sim.Seed() != seed {
		t.Error("seed changed")
	}
	if !reflect.DeepEqual(before, sim.Bodies()) {
		t.Error("bodies changed after rejected runs")
	}
	for i := 0; i < 10; i++ {
		sim.Step(frame)
	}
	if !reflect.DeepEqual(before, sim.Bodies()) {
		t.Error("held ball moved after rejected runs")
	}
	if len(log.events) != 0 {
		t.Errorf("events after rejected runs: %+v", log.events)
	}
}

func TestRunRequiresReset(t *testing.T) {
	sim := newTestSimulation(t, 4, []float64{1}, nil)
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	if err := sim.Run(1); !errors.Is(err, ErrRunActive) {
		t.Errorf("second Run while running = %v, want ErrRunActive", err)
	}
	stepUntilSettled(t, sim)
	if err := sim.Run(1); !errors.Is(err, ErrRunActive) {
		t.Errorf("Run after settling = %v, want ErrRunActive", err)
	}
	// An invalid outcome is reported before the lifecycle error.
	if err := sim.Run(9); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("Run(9) after settling = %v, want ErrInvalidOutcome", err)
	}
	sim.Reset()
	if err := sim.Run(1); err != nil {
		t.Errorf("Run after Reset: %v", err)
	}
}

func TestResetCancelsRun(t *testing.T) {
	log := &eventLog{}
	sim := newTestSimulation(t, 12, []float64{1}, log)
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		sim.Step(frame)
	}
	sim.Reset()
	for i := 0; i < 600; i++ {
		sim.Step(frame)
	}
	if n := len(log.buckets()); n != 0 {
		t.Errorf("got %d bucket events after reset, want 0", n)
	}
	if sim.State() != StateReady {
		t.Errorf("state %s, want ready", sim.State())
	}
	if st := sim.Stats(); st.Cancelled != 1 || st.Runs != 1 || st.Settled != 0 {
		t.Errorf("stats %+v", st)
	}
}

func TestResetPlacesBallNearDropPoint(t *testing.T) {
	sim := newTestSimulation(t, 8, []float64{1}, nil)
	drop := sim.Board().DropPoint
	for i := 0; i < 200; i++ {
		sim.Reset()
		ball, ok := sim.Ball()
		if !ok {
			t.Fatal("no ball after reset")
		}
		if math.Abs(ball.Position.X-drop.X) > DefaultDropJitter || ball.Position.Y != drop.Y {
			t.Fatalf("ball at %+v, drop point %+v", ball.Position, drop)
		}
		if !ball.Velocity.IsZero() {
			t.Fatalf("ball velocity %+v after reset", ball.Velocity)
		}
		if held, _ := ball.Metadata["held"].(bool); !held {
			t.Fatal("ball is not held after reset")
		}
	}
}

func TestListenerMayResetDuringStep(t *testing.T) {
	var sim *Simulation
	pegs, buckets := 0, 0
	listener := ContactListenerFunc(func(e ContactEvent) {
		switch {
		case e.Peg != nil:
			pegs++
			if pegs == 1 {
				sim.Reset()
			}
		case e.Bucket != nil:
			buckets++
		}
	})
	sim = newTestSimulation(t, 8, []float64{1}, listener)
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 600; i++ {
		sim.Step(frame)
	}
	if pegs != 1 || buckets != 0 {
		t.Errorf("pegs=%d buckets=%d after a reset from the listener", pegs, buckets)
	}
	if sim.State() != StateReady {
		t.Errorf("state %s, want ready", sim.State())
	}
}

func TestListenerMayTearDownDuringStep(t *testing.T) {
	var sim *Simulation
	calls := 0
	sim = newTestSimulation(t, 8, []float64{1}, ContactListenerFunc(func(ContactEvent) {
		calls++
		sim.Teardown()
	}))
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 600; i++ {
		sim.Step(frame)
	}
	if calls != 1 {
		t.Errorf("listener called %d times after teardown", calls)
	}
	if sim.State() != StateTornDown {
		t.Errorf("state %s", sim.State())
	}
}

func TestTeardown(t *testing.T) {
	log := &eventLog{}
	sim := newTestSimulation(t, 8, []float64{1}, log)
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	sim.Step(frame)
	sim.Teardown()
	sim.Teardown()

	n := len(log.events)
	for i := 0; i < 600; i++ {
		sim.Step(frame)
	}
	if len(log.events) != n {
		t.Error("events delivered after teardown")
	}
	if sim.Bodies() != nil {
		t.Error("bodies after teardown")
	}
	if _, ok := sim.Ball(); ok {
		t.Error("ball after teardown")
	}
	if err := sim.Run(1); !errors.Is(err, ErrTornDown) {
		t.Errorf("Run after teardown = %v", err)
	}
	if err := sim.Configure(8, []float64{1}); !errors.Is(err, ErrTornDown) {
		t.Errorf("Configure after teardown = %v", err)
	}
	if _, err := sim.Drop(RunRequest{Multiplier: 1}, nil, 0); !errors.Is(err, ErrTornDown) {
		t.Errorf("Drop after teardown = %v", err)
	}
	sim.Reset()
	if sim.State() != StateTornDown {
		t.Errorf("Reset revived a torn down simulation: %s", sim.State())
	}
}

func TestConfigureKeepsBoardOnError(t *testing.T) {
	sim := newTestSimulation(t, 8, []float64{1}, nil)
	board := sim.Board()
	bodies := sim.Bodies()

	if err := sim.Configure(8, []float64{1, 2}); !errors.Is(err, ErrConfig) {
		t.Fatalf("Configure with a bad table = %v", err)
	}
	if err := sim.Configure(0, []float64{1}); !errors.Is(err, ErrConfig) {
		t.Fatalf("Configure with zero rows = %v", err)
	}
	if !reflect.DeepEqual(sim.Board(), board) || !reflect.DeepEqual(bodies, sim.Bodies()) {
		t.Error("failed Configure changed the board")
	}

	if err := sim.Configure(12, []float64{2}); err != nil {
		t.Fatal(err)
	}
	if len(sim.Board().Buckets) != 13 || sim.Width() <= board.Width {
		t.Errorf("reconfigured board: %d buckets, width %v", len(sim.Board().Buckets), sim.Width())
	}
	if err := sim.Run(1); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("old multiplier accepted after Configure: %v", err)
	}
	if err := sim.Run(2); err != nil {
		t.Errorf("Run(2) on the new board: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := []Config{
		{Rows: 0, Multipliers: []float64{1}},
		{Rows: 8, Multipliers: []float64{1, 2}},
		{Rows: 8, Multipliers: []float64{1}, DropJitter: PegSpacing},
		{Rows: 8, Multipliers: []float64{1}, MaxRunSteps: -1},
		{Rows: 8, Multipliers: []float64{1}, Physics: &Physics{}},
		{Rows: 8, Multipliers: []float64{1}, Steering: &Steering{GainTop: -1}},
	}
	for i, cfg := range bad {
		if _, err := New(cfg); !errors.Is(err, ErrConfig) {
			t.Errorf("config %d: got %v, want ErrConfig", i, err)
		}
	}
}

func TestStepToleratesIrregularElapsed(t *testing.T) {
	sim := newTestSimulation(t, 8, []float64{1}, nil)
	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	for _, d := range []time.Duration{0, -time.Second, time.Nanosecond, time.Hour, 3 * time.Millisecond} {
		sim.Step(d)
	}
	stepUntilSettled(t, sim)
}

func TestDuplicateMultiplierTargetsCentre(t *testing.T) {
	table := []float64{2, 1, 0.5, 1, 2}
	sim := newTestSimulation(t, 4, table, nil)

	res, err := sim.Drop(RunRequest{Multiplier: 1}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bucket != 1 {
		t.Errorf("Drop(1) landed in %d, want the lower of the two central matches", res.Bucket)
	}

	right := 3
	res, err = sim.Drop(RunRequest{Multiplier: 1, Bucket: &right}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bucket != 3 {
		t.Errorf("Drop(1, bucket 3) landed in %d", res.Bucket)
	}
}

func TestMultiplierOverride(t *testing.T) {
	override := 1000.0
	log := &eventLog{}
	sim, err := New(Config{Rows: 8, Multipliers: []float64{1}, OnContact: log, MultiplierOverride: &override})
	if err != nil {
		t.Fatal(err)
	}
	res, err := sim.Drop(RunRequest{Multiplier: 1}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Multiplier != 1 || res.DisplayMultiplier != 1000 {
		t.Errorf("result multipliers %v / %v", res.Multiplier, res.DisplayMultiplier)
	}

	perRun := 7.0
	log.events = nil
	res, err = sim.Drop(RunRequest{Multiplier: 1, MultiplierOverride: &perRun}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b := log.buckets(); len(b) != 1 || b[0].Bucket.Multiplier != 7 {
		t.Errorf("bucket events %+v, want multiplier 7", b)
	}
	if res.DisplayMultiplier != 7 {
		t.Errorf("display multiplier %v", res.DisplayMultiplier)
	}
}

func TestDropIsReproducible(t *testing.T) {
	table := []float64{8.9, 3, 1.4, 1.1, 1, 0.5, 1, 1.1, 1.4, 3, 8.9}
	seed := Seed{ServerSeed: "replay", ClientSeed: "alice", Nonce: 3}

	a := newTestSimulation(t, 10, table, nil)
	b := newTestSimulation(t, 10, table, nil)
	ra, err := a.Drop(RunRequest{Multiplier: 8.9}, &seed, 4)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.Drop(RunRequest{Multiplier: 8.9}, &seed, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ra, rb) {
		t.Error("same seed produced different drops")
	}
	if ra.Seed != seed {
		t.Errorf("result seed %+v", ra.Seed)
	}
	if len(ra.Frames) < 2 || ra.Frames[0].Step != 0 {
		t.Fatalf("frames %+v", ra.Frames)
	}
	last := ra.Frames[len(ra.Frames)-1]
	if bk := a.Board().Buckets[ra.Bucket]; !bk.Contains(last.Position.X) {
		t.Errorf("last frame %+v is not in bucket %d", last, ra.Bucket)
	}

	buckets := 0
	for _, e := range ra.Events {
		if e.Bucket != nil {
			buckets++
		}
	}
	if buckets != 1 {
		t.Errorf("drop recorded %d bucket events", buckets)
	}
	if a.State() != StateSettled {
		t.Errorf("state after Drop %s", a.State())
	}
}

func TestStatsCount(t *testing.T) {
	sim := newTestSimulation(t, 6, []float64{1}, nil)
	for i := 0; i < 5; i++ {
		if _, err := sim.Drop(RunRequest{Multiplier: 1}, nil, 0); err != nil {
			t.Fatal(err)
		}
	}
	st := sim.Stats()
	if st.Runs != 5 || st.Settled != 5 {
		t.Errorf("stats %+v", st)
	}
}

func TestRunStateString(t *testing.T) {
	for s, want := range map[RunState]string{
		StateReady:    "ready",
		StateRunning:  "running",
		StateSettled:  "settled",
		StateTornDown: "torn_down",
		RunState(42):  "RunState(42)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestPanickingListenerDoesNotEscapeStep(t *testing.T) {
	var calls, landings int
	sim := newTestSimulation(t, 8, []float64{1}, ContactListenerFunc(func(e ContactEvent) {
		calls++
		if e.Bucket != nil {
			landings++
		}
		panic("listener failure")
	}))
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("listener panic escaped: %v", r)
		}
	}()

	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	stepUntilSettled(t, sim)

	res, ok := sim.Result()
	if !ok || res.Bucket != 4 {
		t.Fatalf("result %+v (ok=%v), want bucket 4", res, ok)
	}
	if calls < 2 || landings != 1 {
		t.Errorf("listener saw %d events with %d landings, want every event and one landing", calls, landings)
	}

	res2, err := sim.Drop(RunRequest{Multiplier: 1}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Bucket != 4 || landings != 2 {
		t.Errorf("headless drop with a failing listener: bucket %d, %d landings", res2.Bucket, landings)
	}
}

func TestBoardReturnsCopy(t *testing.T) {
	sim := newTestSimulation(t, 8, []float64{1}, nil)
	b := sim.Board()
	want := b.Clone()

	b.Pegs[0].Position = Vec2{X: -100, Y: -100}
	b.Barriers[0].Vertices[0] = Vec2{X: -100, Y: -100}
	b.Buckets[4].MinX = 0
	b.Walls[0].Vertices[0] = Vec2{X: -100, Y: -100}
	b.BucketTop = 0

	if !reflect.DeepEqual(sim.Board(), want) {
		t.Fatal("mutating the returned board changed the simulation's board")
	}
	for _, body := range sim.Bodies() {
		if body.Label == LabelPeg && body.Position == (Vec2{X: -100, Y: -100}) {
			t.Fatal("mutating the returned board moved a peg body")
		}
	}

	if err := sim.Run(1); err != nil {
		t.Fatal(err)
	}
	stepUntilSettled(t, sim)
	res, _ := sim.Result()
	ball, _ := sim.Ball()
	if res.Bucket != 4 || !want.Buckets[4].Contains(ball.Position.X) {
		t.Errorf("landed in %d at x=%v after the copy was mutated", res.Bucket, ball.Position.X)
	}
}

func TestLandedBallSettlesOnBucketFloor(t *testing.T) {
	log := &eventLog{}
	table := []float64{5.6, 2.1, 1.1, 1, 0.5, 1, 1.1, 2.1, 5.6}
	sim := newTestSimulation(t, 8, table, log)
	board := sim.Board()

	sim.ResetWithSeed(NewSeed("floor", 1))
	if err := sim.Run(2.1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1200 && sim.State() == StateRunning; i++ {
		sim.Step(frame)
	}
	res, ok := sim.Result()
	if !ok {
		t.Fatalf("run did not settle, state %s", sim.State())
	}
	if !res.Forced && !sim.Settling() {
		t.Error("ball was frozen on landing instead of settling")
	}
	if err := sim.Run(2.1); !errors.Is(err, ErrRunActive) {
		t.Errorf("Run while the ball settles = %v, want ErrRunActive", err)
	}

	for i := 0; i < 200 && sim.Settling(); i++ {
		sim.Step(frame)
	}
	if sim.Settling() {
		t.Fatal("ball still settling after the settle budget")
	}

	ball, _ := sim.Ball()
	bk := board.Buckets[res.Bucket]
	if ball.Position.X-ball.Radius < bk.MinX || ball.Position.X+ball.Radius > bk.MaxX {
		t.Errorf("ball x=%v outside bucket %d [%v, %v]", ball.Position.X, bk.Index, bk.MinX, bk.MaxX)
	}
	if d := board.FloorY() - (ball.Position.Y + ball.Radius); d < -0.5 || d > 1 {
		t.Errorf("ball rests at y=%v, floor at %v", ball.Position.Y, board.FloorY())
	}
	if ball.Velocity.Magnitude() != 0 || ball.Metadata["held"] != true {
		t.Errorf("settled ball %+v is not held", ball)
	}

	if n := len(log.buckets()); n != 1 {
		t.Errorf("got %d bucket events, want 1", n)
	}
	for _, e := range log.events {
		if e.Kind() == "" {
			t.Errorf("event %+v names no body", e)
		}
	}
}
