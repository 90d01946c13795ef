package plinko

import "math"

// Steering tunes the outcome controller.
type Steering struct {
	// GainTop and GainBottom are the proportional gains (1/s²) at the top
	// and at the bucket row; the gain rises quadratically with progress.
	GainTop    float64
	GainBottom float64
	// Damping (1/s) acts on lateral velocity relative to the ideal line.
	Damping float64
	// CommitGain applies below the last peg row while the ball is outside
	// its target bucket.
	CommitGain float64
	// MaxAccel caps the steering acceleration (px/s²) inside the peg field.
	// The commit phase may use four times as much.
	MaxAccel float64
	// PegJitter bounds the random lateral velocity (px/s) added on every
	// peg contact.
	PegJitter float64
}

// DefaultSteering returns the tuned controller parameters.
func DefaultSteering() Steering {
	return Steering{
		GainTop:    DefaultSteerGainTop,
		GainBottom: DefaultSteerGainBottom,
		Damping:    DefaultSteerDamping,
		CommitGain: DefaultCommitGain,
		MaxAccel:   DefaultMaxSteerAccel,
		PegJitter:  DefaultPegJitter,
	}
}

// Validate rejects negative or non-finite parameters.
func (s Steering) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"steering.gain_top", s.GainTop},
		{"steering.gain_bottom", s.GainBottom},
		{"steering.damping", s.Damping},
		{"steering.commit_gain", s.CommitGain},
		{"steering.max_accel", s.MaxAccel},
		{"steering.peg_jitter", s.PegJitter},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return configErrorf(f.name, "must be a finite non-negative number, got %v", f.value)
		}
	}
	return nil
}

// steering pulls the ball toward a funnel line that runs from where the
// run started to the centre of the target bucket at the bucket row. The
// line is snapped to the nearest gap of the row the ball is about to pass,
// so the ball never balances on top of a peg. Peg bounces still perturb
// the ball; the controller only has to win over the whole drop, not over
// each bounce.
type steering struct {
	board  *Board
	target Bucket
	params Steering
	jitter *jitterStream

	anchor Vec2
	slope  float64 // dx/dy of the funnel line
}

func newSteering(board *Board, target Bucket, start Vec2, params Steering, jitter *jitterStream) *steering {
	st := &steering{
		board:  board,
		target: target,
		params: params,
		jitter: jitter,
		anchor: start,
	}
	if span := board.BucketTop - start.Y; span > 0 {
		st.slope = (target.CenterX() - start.X) / span
	}
	return st
}

// idealX is the funnel line's x at height y.
func (st *steering) idealX(y float64) float64 {
	dy := y - st.anchor.Y
	if dy < 0 {
		dy = 0
	}
	if span := st.board.BucketTop - st.anchor.Y; dy > span {
		dy = span
	}
	return st.anchor.X + st.slope*dy
}

// gapX is the passage of the next peg row below y closest to the funnel
// line. The gaps of row r sit exactly above the pegs of row r+1, and the
// gaps of the last row are the bucket centres.
func (st *steering) gapX(y float64) float64 {
	bd := st.board
	r := int(math.Ceil((y - bd.FirstRowY) / bd.RowSpacing))
	if r < 0 {
		r = 0
	}
	if r > bd.Rows-1 {
		r = bd.Rows - 1
	}
	fx := st.idealX(bd.FirstRowY + float64(r)*bd.RowSpacing)
	half := float64(r+1) / 2
	c := math.Round((fx-bd.CenterX())/bd.PegSpacing + half)
	c = math.Max(0, math.Min(float64(r+1), c))
	return bd.CenterX() + (c-half)*bd.PegSpacing
}

// progress is how far down the funnel the ball is, in [0, 1].
func (st *steering) progress(y float64) float64 {
	span := st.board.BucketTop - st.anchor.Y
	if span <= 0 {
		return 1
	}
	p := (y - st.anchor.Y) / span
	return math.Max(0, math.Min(1, p))
}

// apply writes the corrective acceleration for the next sub-step.
func (st *steering) apply(b *Ball) {
	if b == nil {
		return
	}
	b.Accel = Vec2{X: st.lateralAccel(b)}
}

func (st *steering) lateralAccel(b *Ball) float64 {
	pos, vel := b.Position, b.Velocity
	p := st.params

	if pos.Y > st.board.LastRowY-st.board.PegRadius {
		// Level with the last row or below it: only the target bucket matters.
		dx := pos.X - st.target.CenterX()
		half := st.board.PegSpacing/2 - b.Radius/2
		fall := math.Max(vel.Y, 50)
		drift := math.Abs(vel.X) * math.Max(st.board.BucketTop-pos.Y, 0) / fall
		if math.Abs(dx)+drift <= half {
			return 0
		}
		a := -p.CommitGain*dx - 2*p.Damping*vel.X
		return clampAbs(a, 4*p.MaxAccel)
	}

	d := pos.X - st.gapX(pos.Y)
	prog := st.progress(pos.Y)
	k := p.GainTop + (p.GainBottom-p.GainTop)*prog*prog
	a := -k*d - p.Damping*(vel.X-st.slope*math.Max(vel.Y, 0))
	return clampAbs(a, p.MaxAccel)
}

// onPegContact nudges the ball sideways by a small symmetric random amount.
func (st *steering) onPegContact(b *Ball) {
	if b == nil || st.jitter == nil || st.params.PegJitter == 0 {
		return
	}
	b.Velocity.X += st.jitter.Symmetric(st.params.PegJitter)
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
