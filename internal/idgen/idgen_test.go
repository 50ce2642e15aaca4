package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Shape(t *testing.T) {
	g := New()

	id := g.Generate(PrefixCommodity)
	assert.True(t, IsLocal(id), id)
	assert.True(t, strings.HasPrefix(id, "MED-"))

	id = g.Generate("bld")
	assert.True(t, strings.HasPrefix(id, "BLD-"), id)
}

func TestGenerate_Deterministic(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	g := New(
		WithClock(func() time.Time { return at }),
		WithRandom(func(n int) int { return 35 }),
	)

	assert.Equal(t, "MED-LOYW3V28-LZZZZZZ", g.Generate(PrefixCommodity))
}

func TestGenerate_Unique(t *testing.T) {
	g := New()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := g.Generate(PrefixBlood)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIsLocal(t *testing.T) {
	assert.False(t, IsLocal("R-1"))
	assert.False(t, IsLocal(""))
	assert.False(t, IsLocal("MED-ABC-X123456"))
}
