// Package jobid mints and decodes time-ordered job identifiers.
//
// An ID uses the RFC 4122 version 1 layout:
//
//	time_low(32) time_mid(16) version(4)+time_hi(12) variant(2)+clock_seq(14) node(48)
//
// The 60-bit time field counts 100ns ticks since 1582-10-15 UTC, so every ID
// carries its own creation instant. The job store and the expiry sweeper rely
// on that: there is no separate creation timestamp on disk.
//
// Unlike a stock version 1 generator, the 14-bit clock sequence is drawn fresh
// from the random source on every Mint, so processes sharing a node id do not
// need to coordinate.
package jobid

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// gregorianOffset is the number of 100ns ticks between 1582-10-15 and 1970-01-01.
const gregorianOffset = 122192928000000000

const (
	tickMask     = 1<<60 - 1
	clockSeqMask = 1<<14 - 1
	textLen      = 36
)

// ErrInvalidFormat is returned by Parse when text is not a canonical job id.
var ErrInvalidFormat = errors.New("invalid job id format")

// ID is a 128-bit job identifier.
type ID uuid.UUID

// Nil is the zero ID. It is never returned by Mint.
var Nil ID

// String returns the canonical lowercase form xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Ticks returns the raw 60-bit timestamp field.
func (id ID) Ticks() uint64 {
	low := uint64(binary.BigEndian.Uint32(id[0:4]))
	mid := uint64(binary.BigEndian.Uint16(id[4:6]))
	hi := uint64(binary.BigEndian.Uint16(id[6:8]) & 0x0fff)
	return low | mid<<32 | hi<<48
}

// Time decodes the creation instant embedded in the id.
func (id ID) Time() time.Time {
	sec, nsec := uuid.UUID(id).Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// ClockSeq returns the 14-bit random field.
func (id ID) ClockSeq() uint16 {
	return uint16(uuid.UUID(id).ClockSequence())
}

// Node returns a copy of the 48-bit node discriminator.
func (id ID) Node() []byte {
	n := make([]byte, 6)
	copy(n, id[10:])
	return n
}

// IsZero reports whether id is Nil.
func (id ID) IsZero() bool {
	return id == Nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse parses the canonical 36-character text form. Only version 1 ids with
// the RFC 4122 variant are accepted; braces, urn: prefixes and the 32-digit
// form are rejected.
func Parse(s string) (ID, error) {
	if len(s) != textLen {
		return Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
			}
		default:
			if !isHex(c) {
				return Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
			}
		}
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if u.Version() != 1 || u.Variant() != uuid.RFC4122 {
		return Nil, fmt.Errorf("%w: %q is not a version 1 id", ErrInvalidFormat, s)
	}
	return ID(u), nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// GeneratorConfig configures a Generator. Zero values select the system
// clock, crypto/rand and the host node id.
type GeneratorConfig struct {
	Now  func() time.Time
	Rand io.Reader
	Node []byte
}

// Generator mints IDs. It is safe for concurrent use.
//
// Within one Generator the tick field is strictly increasing: a Mint landing
// on the same (or an earlier) tick as its predecessor is bumped by one tick.
type Generator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
	rand io.Reader
	node [6]byte
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{now: cfg.Now, rand: cfg.Rand}
	if g.now == nil {
		g.now = time.Now
	}
	if g.rand == nil {
		g.rand = rand.Reader
	}
	node := cfg.Node
	if len(node) == 0 {
		node = uuid.NodeID()
	}
	copy(g.node[:], node)
	return g
}

// Mint returns a fresh id stamped with the current time.
func (g *Generator) Mint() (ID, error) {
	var seq [2]byte
	if _, err := io.ReadFull(g.rand, seq[:]); err != nil {
		return Nil, fmt.Errorf("read clock sequence: %w", err)
	}

	ticks := uint64(g.now().UnixNano()/100) + gregorianOffset

	g.mu.Lock()
	if ticks <= g.last {
		ticks = g.last + 1
	}
	g.last = ticks
	g.mu.Unlock()

	return encode(ticks&tickMask, binary.BigEndian.Uint16(seq[:])&clockSeqMask, g.node), nil
}

func encode(ticks uint64, clockSeq uint16, node [6]byte) ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(ticks))
	binary.BigEndian.PutUint16(id[4:6], uint16(ticks>>32))
	binary.BigEndian.PutUint16(id[6:8], uint16(ticks>>48)&0x0fff|0x1000)
	binary.BigEndian.PutUint16(id[8:10], clockSeq|0x8000)
	copy(id[10:], node[:])
	return id
}

var defaultGenerator = NewGenerator(GeneratorConfig{})

// Mint mints an id from the process-wide generator.
func Mint() (ID, error) {
	return defaultGenerator.Mint()
}

// TimeToTicks converts t to the 60-bit tick count used in the id layout.
func TimeToTicks(t time.Time) uint64 {
	return (uint64(t.UnixNano()/100) + gregorianOffset) & tickMask
}
