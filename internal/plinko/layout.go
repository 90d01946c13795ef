package plinko

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/shopspring/decimal"
)

// multiplierPlaces is the precision used when matching a requested
// multiplier against the bucket table.
const multiplierPlaces = 4

// Peg is a static circular obstacle. Index is row-major across the triangle.
type Peg struct {
	Index    int     `json:"index"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Position Vec2    `json:"position"`
	Radius   float64 `json:"radius"`
}

// Barrier is one of the two slanted side walls, a rotated rectangle.
type Barrier struct {
	Index    int     `json:"index"` // 0 = left, 1 = right
	Position Vec2    `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Angle    float64 `json:"angle"`
	Vertices []Vec2  `json:"vertices"`
}

// Bucket is a landing zone below the last peg row.
type Bucket struct {
	Index      int     `json:"index"`
	MinX       float64 `json:"min_x"`
	MaxX       float64 `json:"max_x"`
	Top        float64 `json:"top"`
	Height     float64 `json:"height"`
	Multiplier float64 `json:"multiplier"`
}

// CenterX returns the horizontal middle of the bucket.
func (b Bucket) CenterX() float64 {
	return (b.MinX + b.MaxX) / 2
}

// Contains reports whether x lies inside the bucket's horizontal range.
func (b Bucket) Contains(x float64) bool {
	return x >= b.MinX && x <= b.MaxX
}

// Vertices returns the bucket rectangle, clockwise from the top-left corner.
func (b Bucket) Vertices() []Vec2 {
	return []Vec2{
		{X: b.MinX, Y: b.Top},
		{X: b.MaxX, Y: b.Top},
		{X: b.MaxX, Y: b.Top + b.Height},
		{X: b.MinX, Y: b.Top + b.Height},
	}
}

// Wall is a solid piece of the bucket row: a divider standing on a bucket
// edge, or the floor the buckets share.
type Wall struct {
	Index    int     `json:"index"`
	Floor    bool    `json:"floor,omitempty"`
	Position Vec2    `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Vertices []Vec2  `json:"vertices"`
}

// Board is the static geometry for one row count and multiplier table.
type Board struct {
	Rows       int     `json:"rows"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PegRadius  float64 `json:"peg_radius"`
	BallRadius float64 `json:"ball_radius"`
	PegSpacing float64 `json:"peg_spacing"`
	RowSpacing float64 `json:"row_spacing"`

	DropPoint Vec2    `json:"drop_point"`
	FirstRowY float64 `json:"first_row_y"`
	LastRowY  float64 `json:"last_row_y"`
	BucketTop float64 `json:"bucket_top"`

	Pegs     []Peg     `json:"pegs"`
	Barriers []Barrier `json:"barriers"`
	Buckets  []Bucket  `json:"buckets"`
	// Walls holds rows+2 dividers, left to right, then the floor.
	Walls []Wall `json:"walls"`
}

// BuildBoard lays out a triangular peg field with rows rows. Row r (0-based)
// holds r+1 pegs, so the last row holds rows pegs and rows+1 buckets span the
// bottom with their edges under the last-row pegs.
//
// The multiplier table must either have one entry per bucket or exactly one
// entry, which is then used for every bucket.
func BuildBoard(rows int, multipliers []float64) (*Board, error) {
	if rows < MinRows || rows > MaxRows {
		return nil, configErrorf("rows", "must be between %d and %d, got %d", MinRows, MaxRows, rows)
	}
	table, err := expandMultipliers(multipliers, rows+1)
	if err != nil {
		return nil, err
	}

	s := PegSpacing
	width := float64(rows+2)*s + 2*SideMargin
	cx := width / 2
	dropY := TopMargin
	firstRowY := dropY + RowSpacing
	lastRowY := firstRowY + float64(rows-1)*RowSpacing
	bucketTop := lastRowY + RowSpacing

	b := &Board{
		Rows:       rows,
		Width:      width,
		Height:     bucketTop + BucketHeight + BottomMargin,
		PegRadius:  PegRadius,
		BallRadius: BallRadius,
		PegSpacing: s,
		RowSpacing: RowSpacing,
		DropPoint:  Vec2{X: cx, Y: dropY},
		FirstRowY:  firstRowY,
		LastRowY:   lastRowY,
		BucketTop:  bucketTop,
	}

	b.Pegs = make([]Peg, 0, rows*(rows+1)/2)
	for r := 0; r < rows; r++ {
		y := firstRowY + float64(r)*RowSpacing
		for c := 0; c <= r; c++ {
			b.Pegs = append(b.Pegs, Peg{
				Index:    len(b.Pegs),
				Row:      r,
				Col:      c,
				Position: Vec2{X: cx + (float64(c)-float64(r)/2)*s, Y: y},
				Radius:   PegRadius,
			})
		}
	}

	// The inner faces of the barriers run parallel to the outermost pegs,
	// one spacing outside them, from just above the drop point down to the
	// bucket row.
	wallX := func(y float64, side float64) float64 {
		r := (y - firstRowY) / RowSpacing
		return cx + side*(r/2+1)*s
	}
	top := dropY - RowSpacing/4
	b.Barriers = []Barrier{
		buildBarrier(0, Vec2{X: wallX(top, -1), Y: top}, Vec2{X: wallX(bucketTop, -1), Y: bucketTop}, -1),
		buildBarrier(1, Vec2{X: wallX(top, 1), Y: top}, Vec2{X: wallX(bucketTop, 1), Y: bucketTop}, 1),
	}

	left := cx - (float64(rows)/2+0.5)*s
	b.Buckets = make([]Bucket, rows+1)
	for i := range b.Buckets {
		minX := left + float64(i)*s
		b.Buckets[i] = Bucket{
			Index:      i,
			MinX:       minX,
			MaxX:       minX + s,
			Top:        bucketTop,
			Height:     BucketHeight,
			Multiplier: table[i],
		}
	}

	floorY := bucketTop + BucketHeight
	b.Walls = make([]Wall, 0, rows+3)
	for i := 0; i <= len(b.Buckets); i++ {
		x := left + float64(i)*s
		b.Walls = append(b.Walls, rectWall(len(b.Walls), false, x-DividerThickness/2, bucketTop, DividerThickness, BucketHeight))
	}
	floorLeft := wallX(bucketTop, -1)
	b.Walls = append(b.Walls, rectWall(len(b.Walls), true, floorLeft, floorY, wallX(bucketTop, 1)-floorLeft, FloorThickness))

	return b, nil
}

// rectWall builds an axis-aligned wall whose top-left corner is (x, y).
func rectWall(index int, floor bool, x, y, w, h float64) Wall {
	return Wall{
		Index:    index,
		Floor:    floor,
		Position: Vec2{X: x + w/2, Y: y + h/2},
		Width:    w,
		Height:   h,
		Vertices: []Vec2{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}},
	}
}

// FloorY returns the top of the bucket floor.
func (b *Board) FloorY() float64 {
	return b.BucketTop + BucketHeight
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	out := *b
	out.Pegs = append([]Peg(nil), b.Pegs...)
	out.Buckets = append([]Bucket(nil), b.Buckets...)
	out.Barriers = make([]Barrier, len(b.Barriers))
	for i, bar := range b.Barriers {
		bar.Vertices = append([]Vec2(nil), bar.Vertices...)
		out.Barriers[i] = bar
	}
	out.Walls = make([]Wall, len(b.Walls))
	for i, w := range b.Walls {
		w.Vertices = append([]Vec2(nil), w.Vertices...)
		out.Walls[i] = w
	}
	return &out
}

// buildBarrier turns the inner face p1→p2 into a rectangle of
// BarrierThickness extending away from the board centre (side -1 = left).
func buildBarrier(index int, p1, p2 Vec2, side float64) Barrier {
	dir := p2.Minus(p1)
	length := dir.Magnitude()
	d := dir.Times(1 / length)

	outward := d.RightNormal()
	if outward.X*side < 0 {
		outward = outward.Times(-1)
	}
	center := p1.Plus(p2).Times(0.5).Plus(outward.Times(BarrierThickness / 2))

	// Local +y runs along the wall.
	angle := math.Atan2(d.Y, d.X) - math.Pi/2
	rot := mgl64.Rotate2D(angle)
	hw, hh := BarrierThickness/2, length/2
	corners := []mgl64.Vec2{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}

	verts := make([]Vec2, len(corners))
	for i, c := range corners {
		w := rot.Mul2x1(c)
		verts[i] = Vec2{X: center.X + w[0], Y: center.Y + w[1]}
	}

	return Barrier{
		Index:    index,
		Position: center,
		Width:    BarrierThickness,
		Height:   length,
		Angle:    angle,
		Vertices: verts,
	}
}

// expandMultipliers applies the table policy: exact length, or a single
// value broadcast to every bucket.
func expandMultipliers(multipliers []float64, buckets int) ([]float64, error) {
	if len(multipliers) == 0 {
		return nil, configErrorf("multipliers", "table is empty")
	}
	for i, m := range multipliers {
		if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
			return nil, configErrorf("multipliers", "entry %d is not a finite non-negative number: %v", i, m)
		}
	}

	switch len(multipliers) {
	case buckets:
		out := make([]float64, buckets)
		copy(out, multipliers)
		return out, nil
	case 1:
		out := make([]float64, buckets)
		for i := range out {
			out[i] = multipliers[0]
		}
		return out, nil
	default:
		return nil, configErrorf("multipliers", "table has %d entries, want 1 or %d", len(multipliers), buckets)
	}
}

// Multipliers returns a copy of the per-bucket multiplier table.
func (b *Board) Multipliers() []float64 {
	out := make([]float64, len(b.Buckets))
	for i, bk := range b.Buckets {
		out[i] = bk.Multiplier
	}
	return out
}

// BucketsFor returns the indices of every bucket carrying multiplier m.
func (b *Board) BucketsFor(m float64) []int {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return nil
	}
	want := decimal.NewFromFloat(m).Round(multiplierPlaces)

	var idx []int
	for _, bk := range b.Buckets {
		if decimal.NewFromFloat(bk.Multiplier).Round(multiplierPlaces).Equal(want) {
			idx = append(idx, bk.Index)
		}
	}
	return idx
}

// BucketAt returns the index of the bucket under x, clamped to the outer
// buckets.
func (b *Board) BucketAt(x float64) int {
	if len(b.Buckets) == 0 {
		return -1
	}
	i := int(math.Floor((x - b.Buckets[0].MinX) / b.PegSpacing))
	if i < 0 {
		return 0
	}
	if i >= len(b.Buckets) {
		return len(b.Buckets) - 1
	}
	return i
}

// pegIndex returns the row-major index of peg (row, col).
func pegIndex(row, col int) int {
	return row*(row+1)/2 + col
}

// CenterX returns the horizontal centre of the board.
func (b *Board) CenterX() float64 {
	return b.Width / 2
}
