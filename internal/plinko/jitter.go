package plinko

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
)

// DefaultClientSeed is used when a caller supplies no client seed.
const DefaultClientSeed = "plinko"

// Seed keys the cosmetic randomness of one drop: the drop offset and the
// jitter added on peg contacts. The same seed replays the same path on the
// same board.
type Seed struct {
	ServerSeed string `json:"server_seed"`
	ClientSeed string `json:"client_seed"`
	Nonce      uint64 `json:"nonce"`
}

// NewSeed returns a seed with a fresh random server seed.
func NewSeed(clientSeed string, nonce uint64) Seed {
	if clientSeed == "" {
		clientSeed = DefaultClientSeed
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("plinko: read random seed: %v", err))
	}
	return Seed{ServerSeed: hex.EncodeToString(buf), ClientSeed: clientSeed, Nonce: nonce}
}

// ServerSeedHash is the SHA-256 commitment of the server seed.
func (s Seed) ServerSeedHash() string {
	if s.ServerSeed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.ServerSeed))
	return hex.EncodeToString(sum[:])
}

// jitterStream is an HMAC-SHA256 byte stream keyed by the server seed over
// "clientSeed:nonce:round", read four bytes per float.
type jitterStream struct {
	mac    hash.Hash
	seed   Seed
	round  uint64
	pos    int
	buffer [32]byte
}

func newJitterStream(seed Seed) *jitterStream {
	j := &jitterStream{
		mac:  hmac.New(sha256.New, []byte(seed.ServerSeed)),
		seed: seed,
	}
	j.generateRound()
	return j
}

func (j *jitterStream) generateRound() {
	j.mac.Reset()
	fmt.Fprintf(j.mac, "%s:%d:%d", j.seed.ClientSeed, j.seed.Nonce, j.round)
	copy(j.buffer[:], j.mac.Sum(nil))
	j.pos = 0
}

func (j *jitterStream) next() byte {
	if j.pos >= len(j.buffer) {
		j.round++
		j.generateRound()
	}
	b := j.buffer[j.pos]
	j.pos++
	return b
}

// Float returns the next value in [0, 1).
func (j *jitterStream) Float() float64 {
	result := 0.0
	for i := 0; i < 4; i++ {
		result += float64(j.next()) / math.Pow(256, float64(i+1))
	}
	return result
}

// Symmetric returns the next value in [-max, max).
func (j *jitterStream) Symmetric(max float64) float64 {
	return (2*j.Float() - 1) * max
}
