package plinko

// Board geometry, in pixels. Pegs use a fixed spacing policy: the board grows
// with the row count instead of squeezing pegs into a fixed width.
const (
	PegSpacing       = 40.0
	RowSpacing       = 40.0
	PegRadius        = 5.0
	BallRadius       = 8.0
	BarrierThickness = 6.0
	BucketHeight     = 32.0
	DividerThickness = 2.0
	FloorThickness   = 6.0

	TopMargin    = 40.0
	SideMargin   = 20.0
	BottomMargin = 12.0

	MinRows = 1
	MaxRows = 32

	// DefaultDropJitter bounds the horizontal offset of the ball from the
	// drop point after a reset.
	DefaultDropJitter = 3.0
)

// Physics defaults. Units are pixels and seconds.
const (
	DefaultGravity            = 1000.0
	DefaultFixedStep          = 1.0 / 120.0
	DefaultMaxSubSteps        = 8
	DefaultMaxSpeed           = 600.0
	DefaultPegRestitution     = 0.5
	DefaultBarrierRestitution = 0.4
	DefaultBucketRestitution  = 0.3
	DefaultContactFriction    = 0.05
)

// Run supervision.
const (
	// DefaultMaxRunSteps is the sub-step budget of a single drop before the
	// ball is force-settled into its target bucket.
	DefaultMaxRunSteps = 2000

	// A ball slower than StuckSpeed for StuckWindow consecutive sub-steps
	// is considered wedged.
	StuckSpeed  = 4.0
	StuckWindow = 90

	// DefaultMaxSettleSteps bounds how long a landed ball may keep bouncing
	// inside its bucket before it is held where it is.
	DefaultMaxSettleSteps = 240
)

// Steering defaults.
const (
	DefaultSteerGainTop    = 30.0
	DefaultSteerGainBottom = 160.0
	DefaultSteerDamping    = 4.0
	DefaultCommitGain      = 1200.0
	DefaultMaxSteerAccel   = 2500.0
	DefaultPegJitter       = 15.0
)
