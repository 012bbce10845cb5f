package jobid

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMint_TimeRoundTrip(t *testing.T) {
	instants := []time.Time{
		time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 999999900, time.UTC),
		time.Date(2100, 6, 1, 0, 0, 0, 1234500, time.UTC),
	}

	for _, want := range instants {
		t.Run(want.Format(time.RFC3339Nano), func(t *testing.T) {
			g := NewGenerator(GeneratorConfig{Now: fixedClock(want)})
			id, err := g.Mint()
			require.NoError(t, err)
			assert.True(t, want.Equal(id.Time()), "got=%s want=%s", id.Time(), want)
			assert.Equal(t, TimeToTicks(want), id.Ticks())
		})
	}
}

func TestMint_TruncatesToTick(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	g := NewGenerator(GeneratorConfig{Now: fixedClock(at)})

	id, err := g.Mint()
	require.NoError(t, err)
	assert.Equal(t, at.Truncate(100*time.Nanosecond), id.Time())
}

func TestMint_NowWithinResolution(t *testing.T) {
	before := time.Now().Truncate(100 * time.Nanosecond)
	id, err := Mint()
	require.NoError(t, err)
	after := time.Now()

	got := id.Time()
	assert.False(t, got.Before(before), "decoded %s before %s", got, before)
	assert.False(t, got.After(after.Add(time.Millisecond)), "decoded %s after %s", got, after)
}

func TestMint_LayoutFields(t *testing.T) {
	node := []byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	g := NewGenerator(GeneratorConfig{
		Now:  fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Rand: bytes.NewReader([]byte{0xff, 0xff}),
		Node: node,
	})

	id, err := g.Mint()
	require.NoError(t, err)

	s := id.String()
	assert.Equal(t, byte('1'), s[14], "version nibble in %s", s)
	assert.Contains(t, "89ab", string(s[19]), "variant nibble in %s", s)
	assert.Equal(t, uint16(0x3fff), id.ClockSeq())
	assert.Equal(t, node, id.Node())
	assert.True(t, strings.HasSuffix(s, "021122334455"))
}

func TestMint_SameTickIsBumped(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(GeneratorConfig{Now: fixedClock(at)})

	first, err := g.Mint()
	require.NoError(t, err)
	second, err := g.Mint()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, first.Ticks()+1, second.Ticks())
	assert.Equal(t, at.Add(100*time.Nanosecond), second.Time())
}

func TestMint_ConcurrentUnique(t *testing.T) {
	g := NewGenerator(GeneratorConfig{})

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[ID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := g.Mint()
				if err != nil {
					t.Errorf("Mint() error: %v", err)
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestMint_RandomSourceFailure(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Rand: bytes.NewReader(nil)})
	_, err := g.Mint()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clock sequence")
}

func TestParse_RoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := Mint()
		require.NoError(t, err)

		parsed, err := Parse(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParse_AcceptsUppercase(t *testing.T) {
	id, err := Mint()
	require.NoError(t, err)

	parsed, err := Parse(strings.ToUpper(id.String()))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not-a-job-id"},
		{"compact form", "6ba7b8109dad11d180b400c04fd430c8"},
		{"braces", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"},
		{"urn", "urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"misplaced hyphen", "6ba7b8109-dad-11d1-80b4-00c04fd430c8"},
		{"non hex", "6ba7b810-9dad-11d1-80b4-00c04fd430zz"},
		{"version 4", "6ba7b810-9dad-41d1-80b4-00c04fd430c8"},
		{"ncs variant", "6ba7b810-9dad-11d1-00b4-00c04fd430c8"},
		{"path traversal", "../../../../etc/passwd-0000-0000-0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat))
		})
	}
}

func TestID_TextMarshaling(t *testing.T) {
	id, err := Mint()
	require.NoError(t, err)

	b, err := id.MarshalText()
	require.NoError(t, err)

	var got ID
	require.NoError(t, got.UnmarshalText(b))
	assert.Equal(t, id, got)

	var bad ID
	assert.ErrorIs(t, bad.UnmarshalText([]byte("nope")), ErrInvalidFormat)
	assert.True(t, bad.IsZero())
}
