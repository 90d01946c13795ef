package plinko

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestJitterStreamIsDeterministic(t *testing.T) {
	seed := Seed{ServerSeed: "server", ClientSeed: "client", Nonce: 7}
	a := newJitterStream(seed)
	b := newJitterStream(seed)
	// Cross several HMAC rounds.
	for i := 0; i < 40; i++ {
		if x, y := a.Float(), b.Float(); x != y {
			t.Fatalf("value %d differs: %v vs %v", i, x, y)
		}
	}

	other := newJitterStream(Seed{ServerSeed: "server", ClientSeed: "client", Nonce: 8})
	same := 0
	c := newJitterStream(seed)
	for i := 0; i < 10; i++ {
		if c.Float() == other.Float() {
			same++
		}
	}
	if same == 10 {
		t.Error("different nonces produced the same stream")
	}
}

func TestJitterStreamRange(t *testing.T) {
	j := newJitterStream(NewSeed("", 0))
	for i := 0; i < 1000; i++ {
		if f := j.Float(); f < 0 || f >= 1 {
			t.Fatalf("Float() = %v", f)
		}
		if s := j.Symmetric(3); s < -3 || s >= 3 {
			t.Fatalf("Symmetric(3) = %v", s)
		}
	}
}

func TestNewSeed(t *testing.T) {
	s := NewSeed("", 3)
	if s.ClientSeed != DefaultClientSeed {
		t.Errorf("client seed %q, want %q", s.ClientSeed, DefaultClientSeed)
	}
	if len(s.ServerSeed) != 64 {
		t.Errorf("server seed %q is not 32 hex bytes", s.ServerSeed)
	}
	if NewSeed("", 3).ServerSeed == s.ServerSeed {
		t.Error("two fresh seeds are equal")
	}

	sum := sha256.Sum256([]byte(s.ServerSeed))
	if s.ServerSeedHash() != hex.EncodeToString(sum[:]) {
		t.Error("ServerSeedHash is not the sha256 of the server seed")
	}
	if (Seed{}).ServerSeedHash() != "" {
		t.Error("empty seed has a hash")
	}
}
