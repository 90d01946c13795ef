package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/plinko"
	"github.com/playmatatu/plinko/internal/presets"
)

const sampleRate = beep.SampleRate(44100)

// Viewer renders one board in the terminal and drops balls on keypress.
type Viewer struct {
	screen tcell.Screen
	width  int
	height int

	preset presets.Preset
	sim    *plinko.Simulation
	last   time.Time

	status   string
	contacts int

	audioInit bool
}

func NewViewer(preset presets.Preset) (*Viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	v := &Viewer{screen: screen, preset: preset, last: time.Now()}
	v.width, v.height = screen.Size()

	cfg := preset.Config()
	cfg.OnContact = plinko.ContactListenerFunc(v.onContact)
	sim, err := plinko.New(cfg)
	if err != nil {
		screen.Fini()
		return nil, err
	}
	v.sim = sim
	v.status = "space: drop on a random bucket   0-9: drop on bucket   r: reset   q: quit"

	if err := v.initAudio(); err != nil {
		// Non-fatal, the viewer runs without sound
		log.Printf("Audio initialization failed: %v", err)
	}

	return v, nil
}

func (v *Viewer) initAudio() error {
	err := speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	if err == nil {
		v.audioInit = true
	}
	return err
}

func (v *Viewer) playTone(freq float64, d time.Duration) {
	if !v.audioInit {
		return
	}
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(d), sine))
}

func (v *Viewer) onContact(ev plinko.ContactEvent) {
	v.contacts++
	switch {
	case ev.Peg != nil:
		v.playTone(880, 30*time.Millisecond)
	case ev.Barrier != nil:
		v.playTone(440, 40*time.Millisecond)
	case ev.Bucket != nil:
		v.playTone(1320, 150*time.Millisecond)
		v.status = fmt.Sprintf("landed in bucket %d: %gx", ev.Bucket.Index, ev.Bucket.Multiplier)
		if ev.Forced {
			v.status += " (forced)"
		}
	}
}

// drop starts a run toward bucket, or a random bucket when bucket < 0.
func (v *Viewer) drop(bucket int) {
	board := v.sim.Board()
	if bucket < 0 {
		bucket = rand.Intn(len(board.Buckets))
	}
	if bucket >= len(board.Buckets) {
		v.status = fmt.Sprintf("no bucket %d on this board", bucket)
		return
	}
	switch v.sim.State() {
	case plinko.StateRunning:
		return
	case plinko.StateSettled:
		v.sim.Reset()
	}
	v.contacts = 0

	req := plinko.RunRequest{Multiplier: board.Buckets[bucket].Multiplier, Bucket: &bucket}
	if err := v.sim.RunWith(req); err != nil {
		v.status = err.Error()
		return
	}
	v.status = fmt.Sprintf("dropping toward bucket %d (%gx)", bucket, req.Multiplier)
}

// project maps board coordinates onto terminal cells, keeping the aspect
// ratio with cells twice as tall as they are wide.
func (v *Viewer) project(p plinko.Vec2) (int, int) {
	rows := v.height - 2
	sx := float64(v.width) / v.sim.Width()
	sy := float64(rows) / v.sim.Height()
	s := math.Min(sx, sy*2)
	offX := (float64(v.width) - v.sim.Width()*s) / 2
	return int(offX + p.X*s), int(p.Y * s / 2)
}

func (v *Viewer) set(x, y int, r rune, style tcell.Style) {
	if x < 0 || y < 0 || x >= v.width || y >= v.height-2 {
		return
	}
	v.screen.SetContent(x, y, r, nil, style)
}

func (v *Viewer) line(a, b plinko.Vec2, r rune, style tcell.Style) {
	x0, y0 := v.project(a)
	x1, y1 := v.project(b)
	n := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		v.set(x0+int(math.Round(t*float64(x1-x0))), y0+int(math.Round(t*float64(y1-y0))), r, style)
	}
}

func (v *Viewer) draw() {
	v.screen.Clear()
	board := v.sim.Board()

	barrierStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for _, bar := range board.Barriers {
		for i := range bar.Vertices {
			v.line(bar.Vertices[i], bar.Vertices[(i+1)%len(bar.Vertices)], '#', barrierStyle)
		}
	}

	pegStyle := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	for _, p := range board.Pegs {
		x, y := v.project(p.Position)
		v.set(x, y, '•', pegStyle)
	}

	bucketStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	for _, w := range board.Walls {
		if w.Floor {
			v.line(w.Vertices[0], w.Vertices[1], '=', bucketStyle)
			continue
		}
		top := plinko.Vec2{X: w.Position.X, Y: w.Vertices[0].Y}
		v.line(top, plinko.Vec2{X: w.Position.X, Y: w.Vertices[2].Y}, '|', bucketStyle)
	}
	for _, bk := range board.Buckets {
		x0, y0 := v.project(plinko.Vec2{X: bk.MinX, Y: bk.Top})
		x1, _ := v.project(plinko.Vec2{X: bk.MaxX, Y: bk.Top})
		label := fmt.Sprintf("%g", bk.Multiplier)
		cx := (x0+x1)/2 - len(label)/2
		for i, r := range label {
			v.set(cx+i, y0+1, r, bucketStyle)
		}
	}

	if ball, ok := v.sim.Ball(); ok {
		x, y := v.project(ball.Position)
		v.set(x, y, 'O', tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true))
	}

	st := v.sim.Stats()
	lines := []string{
		fmt.Sprintf("%s  %d rows  state=%s  contacts=%d  runs=%d forced=%d",
			v.preset.Name, board.Rows, v.sim.State(), v.contacts, st.Runs, st.ForcedSettles),
		v.status,
	}
	for row, text := range lines {
		for i, r := range text {
			if i >= v.width {
				break
			}
			v.screen.SetContent(i, v.height-2+row, r, nil, tcell.StyleDefault)
		}
	}

	v.screen.Show()
}

func (v *Viewer) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyEnter {
			v.drop(-1)
			return true
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch r := ev.Rune(); {
		case r == 'q':
			return false
		case r == ' ':
			v.drop(-1)
		case r == 'r':
			v.sim.Reset()
			v.contacts = 0
			v.status = "ready"
		case r >= '0' && r <= '9':
			v.drop(int(r - '0'))
		}

	case *tcell.EventResize:
		v.width, v.height = v.screen.Size()
		v.screen.Sync()
	}

	return true
}

func (v *Viewer) run() {
	ticker := time.NewTicker(16 * time.Millisecond) // ~60 FPS
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			eventChan <- v.screen.PollEvent()
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !v.handleInput(ev) {
				return
			}

		case now := <-ticker.C:
			v.sim.Step(now.Sub(v.last))
			v.last = now
			v.draw()
		}
	}
}

func (v *Viewer) cleanup() {
	v.sim.Teardown()
	if v.audioInit {
		speaker.Close()
	}
	v.screen.Fini()
}

func main() {
	cfg := config.Load()
	set, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load presets: %v\n", err)
		os.Exit(1)
	}

	preset := set.Default()
	if len(os.Args) > 1 {
		if preset, err = set.Get(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "%v (boards: %v)\n", err, set.Names())
			os.Exit(1)
		}
	}

	viewer, err := NewViewer(preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer viewer.cleanup()

	viewer.run()
}
