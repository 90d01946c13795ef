package plinko

// PegContact names the peg the ball touched.
type PegContact struct {
	Index int `json:"index"`
}

// BarrierContact names the side wall the ball touched.
type BarrierContact struct {
	Index int `json:"index"`
}

// BucketContact names the bucket the ball landed in. Multiplier is the value
// to display and pay; it equals the bucket's table value unless an override
// was configured for the run.
type BucketContact struct {
	Index      int     `json:"index"`
	Multiplier float64 `json:"multiplier"`
}

// ContactEvent is delivered once per contact begin. Exactly one of Peg,
// Barrier or Bucket is set.
type ContactEvent struct {
	Peg     *PegContact     `json:"peg,omitempty"`
	Barrier *BarrierContact `json:"barrier,omitempty"`
	Bucket  *BucketContact  `json:"bucket,omitempty"`
	Plinko  bool            `json:"plinko"`
	Speed   float64         `json:"speed"`
	Step    int             `json:"step"`
	Forced  bool            `json:"forced,omitempty"`
}

// Kind names the body the event is about.
func (e ContactEvent) Kind() Label {
	switch {
	case e.Peg != nil:
		return LabelPeg
	case e.Barrier != nil:
		return LabelBarrier
	case e.Bucket != nil:
		return LabelBucket
	}
	return ""
}

// ContactListener receives contact events as they happen during Step.
type ContactListener interface {
	OnContact(ContactEvent)
}

// ContactListenerFunc adapts a function to ContactListener.
type ContactListenerFunc func(ContactEvent)

func (f ContactListenerFunc) OnContact(e ContactEvent) {
	f(e)
}

// classifier turns raw collision pairs into contact events for one run.
// Landing is terminal: once a bucket event has been produced no further
// bucket events are, until reset.
type classifier struct {
	board    *Board
	override *float64
	landed   bool
}

func newClassifier(board *Board) *classifier {
	return &classifier{board: board}
}

func (c *classifier) reset(override *float64) {
	c.override = override
	c.landed = false
}

func (c *classifier) classify(collisions []Collision, step int) []ContactEvent {
	if len(collisions) == 0 {
		return nil
	}
	events := make([]ContactEvent, 0, len(collisions))
	for _, col := range collisions {
		other, ok := c.other(col)
		if !ok {
			continue
		}
		ev := ContactEvent{Plinko: true, Speed: col.Speed, Step: step}
		switch other.Label {
		case LabelPeg:
			if other.Index < 0 || other.Index >= len(c.board.Pegs) {
				continue
			}
			ev.Peg = &PegContact{Index: other.Index}
		case LabelBarrier:
			if other.Index < 0 || other.Index >= len(c.board.Barriers) {
				continue
			}
			ev.Barrier = &BarrierContact{Index: other.Index}
		case LabelBucket:
			if c.landed || other.Index < 0 || other.Index >= len(c.board.Buckets) {
				continue
			}
			c.landed = true
			ev.Bucket = c.bucket(other.Index)
		default:
			continue
		}
		events = append(events, ev)
	}
	return events
}

// forcedLanding builds the bucket event for a ball placed directly into a
// bucket, regardless of what has been classified so far.
func (c *classifier) forcedLanding(index, step int) ContactEvent {
	c.landed = true
	return ContactEvent{Bucket: c.bucket(index), Plinko: true, Step: step, Forced: true}
}

func (c *classifier) bucket(index int) *BucketContact {
	m := c.board.Buckets[index].Multiplier
	if c.override != nil {
		m = *c.override
	}
	return &BucketContact{Index: index, Multiplier: m}
}

// other returns the static participant of a ball collision.
func (c *classifier) other(col Collision) (BodyRef, bool) {
	switch {
	case col.A.Label == LabelPlinko && col.B.Label != LabelPlinko:
		return col.B, true
	case col.B.Label == LabelPlinko && col.A.Label != LabelPlinko:
		return col.A, true
	}
	return BodyRef{}, false
}
