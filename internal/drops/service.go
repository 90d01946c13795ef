package drops

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/playmatatu/plinko/internal/models"
	"github.com/playmatatu/plinko/internal/plinko"
	"github.com/playmatatu/plinko/internal/presets"
	rds "github.com/playmatatu/plinko/internal/redis"
)

// Counter names shared by the redis stats keys and the stats endpoint.
const (
	StatDrops  = "drops"
	StatForced = "forced"
)

// Request asks for one server-side drop.
type Request struct {
	Board      string           `json:"board"`
	Multiplier decimal.Decimal  `json:"multiplier"`
	Bucket     *int             `json:"bucket,omitempty"`
	Override   *decimal.Decimal `json:"multiplier_override,omitempty"`
	ClientSeed string           `json:"client_seed,omitempty"`
	Nonce      uint64           `json:"nonce,omitempty"`
}

// Outcome is a stored drop plus the replayable path.
type Outcome struct {
	Drop   models.Drop           `json:"drop"`
	Frames []plinko.Frame        `json:"frames"`
	Events []plinko.ContactEvent `json:"events"`
}

// Published is the message sent on the drops channel when a drop settles.
type Published struct {
	ID                string  `json:"id"`
	Board             string  `json:"board"`
	Bucket            int     `json:"bucket"`
	DisplayMultiplier float64 `json:"display_multiplier"`
	Forced            bool    `json:"forced"`
	Origin            string  `json:"origin,omitempty"`
}

// Service runs headless drops on preset boards and records them.
type Service struct {
	presets    *presets.Set
	store      *Store
	rdb        *redis.Client
	frameEvery int

	mu    sync.Mutex
	pools map[string]*sync.Pool

	drops, forced atomic.Uint64
}

func NewService(set *presets.Set, store *Store, rdb *redis.Client, frameEvery int) *Service {
	return &Service{
		presets:    set,
		store:      store,
		rdb:        rdb,
		frameEvery: frameEvery,
		pools:      make(map[string]*sync.Pool),
	}
}

// Presets returns the boards the service can drop on.
func (s *Service) Presets() *presets.Set {
	return s.presets
}

// Store returns the underlying drop store.
func (s *Service) Store() *Store {
	return s.store
}

// pool returns the simulation pool of one preset. Simulations are not safe
// for concurrent use, so each request borrows its own.
func (s *Service) pool(p presets.Preset) *sync.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pl, ok := s.pools[p.Name]; ok {
		return pl
	}
	pl := &sync.Pool{New: func() interface{} {
		sim, err := plinko.New(p.Config())
		if err != nil {
			// Presets are validated on load.
			log.Printf("[DROPS] cannot build board %s: %v", p.Name, err)
			return nil
		}
		return sim
	}}
	s.pools[p.Name] = pl
	return pl
}

// Drop runs req for operator, stores the result and announces it.
func (s *Service) Drop(ctx context.Context, operator string, req Request) (*Outcome, error) {
	name := req.Board
	if name == "" {
		name = s.presets.Default().Name
	}
	p, err := s.presets.Get(name)
	if err != nil {
		return nil, err
	}

	pl := s.pool(p)
	sim, _ := pl.Get().(*plinko.Simulation)
	if sim == nil {
		return nil, fmt.Errorf("board %s unavailable", p.Name)
	}

	runReq := plinko.RunRequest{
		Multiplier: req.Multiplier.InexactFloat64(),
		Bucket:     req.Bucket,
	}
	if req.Override != nil {
		o := req.Override.InexactFloat64()
		runReq.MultiplierOverride = &o
	}
	seed := plinko.NewSeed(req.ClientSeed, req.Nonce)

	res, err := sim.Drop(runReq, &seed, s.frameEvery)
	pl.Put(sim)
	if err != nil {
		return nil, err
	}

	d := models.Drop{
		Operator:          operator,
		Board:             p.Name,
		Rows:              p.Rows,
		TargetMultiplier:  runReq.Multiplier,
		Bucket:            res.Bucket,
		Multiplier:        res.Multiplier,
		DisplayMultiplier: res.DisplayMultiplier,
		Forced:            res.Forced,
		Steps:             res.Steps,
		ServerSeed:        res.Seed.ServerSeed,
		ServerSeedHash:    res.Seed.ServerSeedHash(),
		ClientSeed:        res.Seed.ClientSeed,
		Nonce:             int64(res.Seed.Nonce),
	}
	if err := s.store.Save(ctx, &d); err != nil {
		return nil, err
	}

	s.Record(ctx, Published{
		ID:                d.ID,
		Board:             d.Board,
		Bucket:            d.Bucket,
		DisplayMultiplier: d.DisplayMultiplier,
		Forced:            d.Forced,
	})

	return &Outcome{Drop: d, Frames: res.Frames, Events: res.Events}, nil
}

// Record counts a settled drop and publishes it to every instance. Drops
// played on live streams come through here too.
func (s *Service) Record(ctx context.Context, p Published) {
	s.drops.Add(1)
	names := []string{StatDrops}
	if p.Forced {
		s.forced.Add(1)
		names = append(names, StatForced)
	}
	if err := rds.IncrStats(ctx, s.rdb, names...); err != nil {
		log.Printf("[REDIS] stats increment failed: %v", err)
	}
	if err := rds.Publish(ctx, s.rdb, rds.DropsChannel, p); err != nil {
		log.Printf("[REDIS] publish drop %s failed: %v", p.ID, err)
	}
}

// Stats combines this instance's counters, the global redis counters and
// the stored totals.
type Stats struct {
	Instance map[string]uint64 `json:"instance"`
	Global   map[string]int64  `json:"global"`
	Stored   Totals            `json:"stored"`
}

func (s *Service) Stats(ctx context.Context, operator string) (*Stats, error) {
	global, err := rds.ReadStats(ctx, s.rdb, StatDrops, StatForced)
	if err != nil {
		log.Printf("[REDIS] stats read failed: %v", err)
		global = map[string]int64{}
	}
	stored, err := s.store.Totals(ctx, operator)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Instance: map[string]uint64{
			StatDrops:  s.drops.Load(),
			StatForced: s.forced.Load(),
		},
		Global: global,
		Stored: stored,
	}, nil
}

// IsClientError reports whether err was caused by the request rather than
// the server.
func IsClientError(err error) bool {
	return errors.Is(err, plinko.ErrInvalidOutcome) ||
		errors.Is(err, plinko.ErrConfig) ||
		errors.Is(err, presets.ErrNotFound)
}
