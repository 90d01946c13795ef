package plinko

import (
	"fmt"
	"math"
)

// Label names the kind of a body, matching what renderers switch on.
type Label string

const (
	LabelPeg     Label = "Peg"
	LabelBarrier Label = "Barrier"
	LabelBucket  Label = "Bucket"
	LabelWall    Label = "BucketWall"
	LabelPlinko  Label = "Plinko"
)

// BodyRef identifies a body by label and stable index.
type BodyRef struct {
	Label Label `json:"label"`
	Index int   `json:"index"`
}

var ballRef = BodyRef{Label: LabelPlinko}

// Collision is one raw contact begin reported by a sub-step. A is always
// the ball.
type Collision struct {
	A      BodyRef
	B      BodyRef
	Normal Vec2
	Speed  float64 // approach speed along the normal
	Sensor bool
}

// Physics holds the integration and material parameters of a world.
type Physics struct {
	Gravity            float64
	FixedStep          float64
	MaxSubSteps        int
	MaxSpeed           float64
	PegRestitution     float64
	BarrierRestitution float64
	BucketRestitution  float64
	ContactFriction    float64
}

// DefaultPhysics returns the tuned board physics.
func DefaultPhysics() Physics {
	return Physics{
		Gravity:            DefaultGravity,
		FixedStep:          DefaultFixedStep,
		MaxSubSteps:        DefaultMaxSubSteps,
		MaxSpeed:           DefaultMaxSpeed,
		PegRestitution:     DefaultPegRestitution,
		BarrierRestitution: DefaultBarrierRestitution,
		BucketRestitution:  DefaultBucketRestitution,
		ContactFriction:    DefaultContactFriction,
	}
}

// Validate rejects parameters the integrator cannot run with.
func (p Physics) Validate() error {
	switch {
	case !(p.Gravity > 0) || math.IsInf(p.Gravity, 0):
		return configErrorf("physics.gravity", "must be positive, got %v", p.Gravity)
	case !(p.FixedStep > 0) || p.FixedStep > 0.1:
		return configErrorf("physics.fixed_step", "must be in (0, 0.1], got %v", p.FixedStep)
	case p.MaxSubSteps < 1:
		return configErrorf("physics.max_sub_steps", "must be at least 1, got %d", p.MaxSubSteps)
	case !(p.MaxSpeed > 0) || math.IsInf(p.MaxSpeed, 0):
		return configErrorf("physics.max_speed", "must be positive, got %v", p.MaxSpeed)
	case p.MaxSpeed*p.FixedStep >= BallRadius+DividerThickness/2:
		return configErrorf("physics.max_speed", "%v px/s tunnels through bucket dividers at step %v", p.MaxSpeed, p.FixedStep)
	case !(p.PegRestitution >= 0 && p.PegRestitution <= 1):
		return configErrorf("physics.peg_restitution", "must be in [0, 1], got %v", p.PegRestitution)
	case !(p.BarrierRestitution >= 0 && p.BarrierRestitution <= 1):
		return configErrorf("physics.barrier_restitution", "must be in [0, 1], got %v", p.BarrierRestitution)
	case !(p.BucketRestitution >= 0 && p.BucketRestitution <= 1):
		return configErrorf("physics.bucket_restitution", "must be in [0, 1], got %v", p.BucketRestitution)
	case !(p.ContactFriction >= 0 && p.ContactFriction < 1):
		return configErrorf("physics.contact_friction", "must be in [0, 1), got %v", p.ContactFriction)
	}
	return nil
}

// Ball is the single dynamic body.
type Ball struct {
	Position Vec2
	Velocity Vec2
	Radius   float64
	// Accel is an external acceleration applied on top of gravity during the
	// next sub-step. Steering writes it before every sub-step.
	Accel Vec2
	// Held balls do not integrate: before a run starts and after settling.
	Held bool
}

// stepObserver is called around every fixed sub-step. afterSubStep returns
// false to stop the current Step call.
type stepObserver interface {
	beforeSubStep(w *World)
	afterSubStep(w *World, collisions []Collision) bool
}

// World owns the static board bodies and the ball, and integrates the ball
// with a fixed-timestep accumulator.
type World struct {
	board   *Board
	physics Physics

	ball     *Ball
	lastGood Ball

	accumulator float64
	steps       int
	faulted     bool

	touching []BodyRef
	scratch  []BodyRef
	static   []BodySnapshot
}

// NewWorld creates a world for board. The ball does not exist until
// ResetBall is called.
func NewWorld(board *Board, physics Physics) (*World, error) {
	if board == nil {
		return nil, configErrorf("board", "is nil")
	}
	if err := physics.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		board:   board,
		physics: physics,
	}
	w.static = staticSnapshots(board)
	return w, nil
}

// Board returns the static geometry.
func (w *World) Board() *Board {
	return w.board
}

// Ball returns the live ball, or nil.
func (w *World) Ball() *Ball {
	return w.ball
}

// Steps returns the number of sub-steps integrated since the last ResetBall.
func (w *World) Steps() int {
	return w.steps
}

// Faulted reports whether the last sub-step had to discard a non-finite or
// escaped ball state.
func (w *World) Faulted() bool {
	return w.faulted
}

// ResetBall discards any previous ball and places a held one at pos.
func (w *World) ResetBall(pos Vec2) {
	w.ball = &Ball{Position: pos, Radius: w.board.BallRadius, Held: true}
	w.lastGood = *w.ball
	w.accumulator = 0
	w.steps = 0
	w.faulted = false
	w.touching = w.touching[:0]
}

// RemoveBall discards the ball.
func (w *World) RemoveBall() {
	w.ball = nil
	w.accumulator = 0
	w.touching = w.touching[:0]
}

// PlaceBall moves the ball to pos, stops it and holds it there.
func (w *World) PlaceBall(pos Vec2) {
	if w.ball == nil {
		w.ResetBall(pos)
		return
	}
	w.ball.Position = pos
	w.ball.Velocity = Vec2{}
	w.ball.Accel = Vec2{}
	w.ball.Held = true
	w.lastGood = *w.ball
	w.accumulator = 0
}

// Release lets a held ball fall.
func (w *World) Release() {
	if w.ball != nil {
		w.ball.Held = false
	}
}

// Step advances the world by elapsed seconds of real time. Time is consumed
// in FixedStep slices, at most MaxSubSteps per call; anything beyond that is
// dropped so a long stall does not cause a burst of catch-up work. It
// returns the number of sub-steps run.
func (w *World) Step(elapsed float64, obs stepObserver) int {
	if w.ball == nil || w.ball.Held {
		w.accumulator = 0
		return 0
	}
	if !(elapsed > 0) || math.IsInf(elapsed, 0) {
		return 0
	}

	dt := w.physics.FixedStep
	if limit := dt * float64(w.physics.MaxSubSteps); elapsed > limit {
		elapsed = limit
	}
	w.accumulator += elapsed

	n := 0
	for w.accumulator+1e-9 >= dt && n < w.physics.MaxSubSteps {
		w.accumulator -= dt
		if obs != nil {
			obs.beforeSubStep(w)
		}
		collisions := w.subStep(dt)
		n++
		if obs != nil && !obs.afterSubStep(w, collisions) {
			w.accumulator = 0
			break
		}
		if w.ball == nil || w.ball.Held {
			w.accumulator = 0
			break
		}
	}
	if w.accumulator < 0 {
		w.accumulator = 0
	}
	return n
}

// subStep integrates the ball once (semi-implicit Euler), resolves contacts
// and reports the ones that began this sub-step.
func (w *World) subStep(dt float64) []Collision {
	b := w.ball
	w.steps++
	w.faulted = false

	accel := Vec2{X: b.Accel.X, Y: b.Accel.Y + w.physics.Gravity}
	b.Velocity = b.Velocity.Plus(accel.Times(dt)).ClampMagnitude(w.physics.MaxSpeed)
	b.Position = b.Position.Plus(b.Velocity.Times(dt))
	if !b.Position.IsFinite() || !b.Velocity.IsFinite() {
		w.restore()
		return nil
	}

	w.scratch = w.scratch[:0]
	var collisions []Collision

	record := func(ref BodyRef, c contact, speed float64, sensor bool) {
		w.scratch = append(w.scratch, ref)
		if containsRef(w.touching, ref) {
			return
		}
		collisions = append(collisions, Collision{
			A:      ballRef,
			B:      ref,
			Normal: c.normal,
			Speed:  speed,
			Sensor: sensor,
		})
	}

	w.collidePegs(record)

	for i := range w.board.Barriers {
		bar := &w.board.Barriers[i]
		if c, ok := circlePolygon(b.Position, b.Radius, bar.Vertices); ok {
			speed := w.respond(c, w.physics.BarrierRestitution)
			record(BodyRef{Label: LabelBarrier, Index: bar.Index}, c, speed, false)
		}
	}

	if b.Position.Y+b.Radius >= w.board.BucketTop {
		for i := range w.board.Walls {
			wall := &w.board.Walls[i]
			if c, ok := circlePolygon(b.Position, b.Radius, wall.Vertices); ok {
				speed := w.respond(c, w.physics.BucketRestitution)
				record(BodyRef{Label: LabelWall, Index: wall.Index}, c, speed, false)
			}
		}
	}

	if b.Position.Y >= w.board.BucketTop {
		idx := w.board.BucketAt(b.Position.X)
		record(BodyRef{Label: LabelBucket, Index: idx}, contact{normal: Vec2{Y: -1}}, math.Max(b.Velocity.Y, 0), true)
	}

	w.touching, w.scratch = w.scratch, w.touching

	if !b.Position.IsFinite() || !b.Velocity.IsFinite() || w.outOfBounds(b.Position) {
		w.restore()
		return nil
	}
	w.lastGood = *b
	return collisions
}

// restore puts the ball back where it last was valid, at rest.
func (w *World) restore() {
	b := w.ball
	b.Position = w.lastGood.Position
	b.Velocity = Vec2{}
	b.Accel = Vec2{}
	w.faulted = true
}

// collidePegs checks only the pegs in the rows and columns around the ball.
func (w *World) collidePegs(record func(BodyRef, contact, float64, bool)) {
	b := w.ball
	bd := w.board
	reach := b.Radius + bd.PegRadius

	rf := (b.Position.Y - bd.FirstRowY) / bd.RowSpacing
	r0 := int(math.Floor(rf - reach/bd.RowSpacing))
	r1 := int(math.Ceil(rf + reach/bd.RowSpacing))
	if r0 < 0 {
		r0 = 0
	}
	if r1 > bd.Rows-1 {
		r1 = bd.Rows - 1
	}

	cx := bd.CenterX()
	for r := r0; r <= r1; r++ {
		cf := (b.Position.X-cx)/bd.PegSpacing + float64(r)/2
		c0 := int(math.Floor(cf))
		c1 := int(math.Ceil(cf))
		if c0 < 0 {
			c0 = 0
		}
		if c1 > r {
			c1 = r
		}
		for c := c0; c <= c1; c++ {
			peg := &bd.Pegs[pegIndex(r, c)]
			if ct, ok := circleCircle(b.Position, b.Radius, peg.Position, peg.Radius); ok {
				speed := w.respond(ct, w.physics.PegRestitution)
				record(BodyRef{Label: LabelPeg, Index: peg.Index}, ct, speed, false)
			}
		}
	}
}

// respond pushes the ball out of a contact and reflects the approaching
// part of its velocity. It returns the approach speed.
func (w *World) respond(c contact, restitution float64) float64 {
	b := w.ball
	b.Position = b.Position.Plus(c.normal.Times(c.depth))

	vn := b.Velocity.Dot(c.normal)
	if vn >= 0 {
		return 0
	}
	normal := c.normal.Times(vn)
	tangent := b.Velocity.Minus(normal)
	b.Velocity = tangent.Times(1 - w.physics.ContactFriction).Minus(normal.Times(restitution))
	return -vn
}

func (w *World) outOfBounds(p Vec2) bool {
	margin := w.board.PegSpacing
	return p.X < -margin || p.X > w.board.Width+margin ||
		p.Y < -w.board.Height || p.Y > w.board.Height+margin
}

func containsRef(refs []BodyRef, ref BodyRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// BodySnapshot is a copy of one body's state for rendering.
type BodySnapshot struct {
	Label    Label          `json:"label"`
	Position Vec2           `json:"position"`
	Velocity Vec2           `json:"velocity"`
	Angle    float64        `json:"angle"`
	Radius   float64        `json:"radius,omitempty"`
	Vertices []Vec2         `json:"vertices,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s BodySnapshot) clone() BodySnapshot {
	out := s
	if s.Vertices != nil {
		out.Vertices = append([]Vec2(nil), s.Vertices...)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Bodies returns copies of every body: pegs, barriers, buckets, bucket
// walls, then the ball if there is one.
func (w *World) Bodies() []BodySnapshot {
	out := make([]BodySnapshot, 0, len(w.static)+1)
	for _, s := range w.static {
		out = append(out, s.clone())
	}
	if bs, ok := w.BallSnapshot(); ok {
		out = append(out, bs)
	}
	return out
}

// BallSnapshot returns a copy of the ball state.
func (w *World) BallSnapshot() (BodySnapshot, bool) {
	if w.ball == nil {
		return BodySnapshot{}, false
	}
	return BodySnapshot{
		Label:    LabelPlinko,
		Position: w.ball.Position,
		Velocity: w.ball.Velocity,
		Radius:   w.ball.Radius,
		Metadata: map[string]any{"held": w.ball.Held},
	}, true
}

func staticSnapshots(b *Board) []BodySnapshot {
	out := make([]BodySnapshot, 0, len(b.Pegs)+len(b.Barriers)+len(b.Buckets)+len(b.Walls))
	for _, p := range b.Pegs {
		out = append(out, BodySnapshot{
			Label:    LabelPeg,
			Position: p.Position,
			Radius:   p.Radius,
			Metadata: map[string]any{"pegIndex": p.Index},
		})
	}
	for _, bar := range b.Barriers {
		out = append(out, BodySnapshot{
			Label:    LabelBarrier,
			Position: bar.Position,
			Angle:    bar.Angle,
			Vertices: bar.Vertices,
			Metadata: map[string]any{"barrierIndex": bar.Index},
		})
	}
	for _, bk := range b.Buckets {
		out = append(out, BodySnapshot{
			Label:    LabelBucket,
			Position: Vec2{X: bk.CenterX(), Y: bk.Top + bk.Height/2},
			Vertices: bk.Vertices(),
			Metadata: map[string]any{
				"bucketIndex":      bk.Index,
				"bucketMultiplier": bk.Multiplier,
			},
		})
	}
	for _, wall := range b.Walls {
		out = append(out, BodySnapshot{
			Label:    LabelWall,
			Position: wall.Position,
			Vertices: wall.Vertices,
			Metadata: map[string]any{"wallIndex": wall.Index, "floor": wall.Floor},
		})
	}
	return out
}

func (r BodyRef) String() string {
	return fmt.Sprintf("%s#%d", r.Label, r.Index)
}
