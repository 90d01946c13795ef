package drops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/plinko/internal/database"
	"github.com/playmatatu/plinko/internal/migrations"
	"github.com/playmatatu/plinko/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Connect("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Bootstrap(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func sampleDrop(operator, board string, forced bool) models.Drop {
	return models.Drop{
		Operator:          operator,
		Board:             board,
		Rows:              8,
		TargetMultiplier:  1.5,
		Bucket:            3,
		Multiplier:        1.5,
		DisplayMultiplier: 1.5,
		Forced:            forced,
		Steps:             240,
		ServerSeed:        "seed",
		ServerSeedHash:    "hash",
		ClientSeed:        "client",
		Nonce:             7,
	}
}

func TestSaveAndGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	d := sampleDrop("house", "low-8", true)
	if err := store.Save(ctx, &d); err != nil {
		t.Fatal(err)
	}
	if d.ID == "" || d.CreatedAt.IsZero() {
		t.Fatalf("Save did not assign id and time: %+v", d)
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Operator != "house" || got.Board != "low-8" || got.Rows != 8 || got.Bucket != 3 {
		t.Errorf("got %+v", got)
	}
	if !got.Forced || got.Nonce != 7 || got.DisplayMultiplier != 1.5 {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.Sub(d.CreatedAt).Abs() > time.Second {
		t.Errorf("created_at %v, saved %v", got.CreatedAt, d.CreatedAt)
	}
}

func TestGetUnknown(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "8c5d3a3e-2f1b-4c55-9a0d-3f1e2b7c9d10"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) = %v, want ErrNotFound", id, err)
		}
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		operator, board string
	}{
		{"house", "low-8"},
		{"house", "high-16"},
		{"guest", "low-8"},
		{"house", "low-8"},
	}
	for i, r := range rows {
		d := sampleDrop(r.operator, r.board, false)
		d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		d.Nonce = int64(i)
		if err := store.Save(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d drops, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("drops not newest first: %v after %v", all[i].CreatedAt, all[i-1].CreatedAt)
		}
	}
	if all[0].Nonce != 3 {
		t.Errorf("newest drop has nonce %d, want 3", all[0].Nonce)
	}

	house, err := store.List(ctx, Filter{Operator: "house", Board: "low-8"})
	if err != nil {
		t.Fatal(err)
	}
	if len(house) != 2 {
		t.Errorf("house on low-8: got %d drops, want 2", len(house))
	}

	page, err := store.List(ctx, Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Nonce != 2 {
		t.Errorf("second page = %+v", page)
	}
}

func TestTotals(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for _, forced := range []bool{false, true, false} {
		d := sampleDrop("house", "low-8", forced)
		if err := store.Save(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	d := sampleDrop("guest", "low-8", true)
	if err := store.Save(ctx, &d); err != nil {
		t.Fatal(err)
	}

	all, err := store.Totals(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if all != (Totals{Drops: 4, Forced: 2}) {
		t.Errorf("totals = %+v", all)
	}
	house, err := store.Totals(ctx, "house")
	if err != nil {
		t.Fatal(err)
	}
	if house != (Totals{Drops: 3, Forced: 1}) {
		t.Errorf("house totals = %+v", house)
	}
}
