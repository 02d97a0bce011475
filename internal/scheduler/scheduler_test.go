package scheduler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Entry[int] {
	return []Entry[int]{
		{Name: "a", Weight: 6, Value: 1},
		{Name: "b", Weight: 3, Value: 2},
		{Name: "c", Weight: 1, Value: 3},
	}
}

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		c, err := New(sample())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, c.Names())
		assert.Equal(t, 10, c.TotalWeight())
		assert.InDelta(t, 0.6, c.Share("a"), 1e-9)
	})

	t.Run("rejects zero weight", func(t *testing.T) {
		_, err := New([]Entry[int]{{Name: "a", Weight: 0}})
		assert.ErrorIs(t, err, ErrInvalidWeight)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := New([]Entry[int]{{Name: "a", Weight: 1}, {Name: "a", Weight: 2}})
		assert.Error(t, err)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := New[int](nil)
		assert.ErrorIs(t, err, ErrEmptyCatalog)
	})
}

func TestPickConvergesToWeights(t *testing.T) {
	c, err := New(sample())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	const draws = 200000
	counts := map[string]int{}
	for range draws {
		e := c.Pick(rng)
		counts[e.Name]++
	}

	for _, name := range c.Names() {
		got := float64(counts[name]) / draws
		assert.InDelta(t, c.Share(name), got, 0.01, "task %s", name)
	}
}

func TestPickReturnsValue(t *testing.T) {
	c, err := New([]Entry[string]{{Name: "only", Weight: 5, Value: "op"}})
	require.NoError(t, err)
	e := c.Pick(rand.New(rand.NewSource(1)))
	assert.Equal(t, "only", e.Name)
	assert.Equal(t, "op", e.Value)
}

func TestRestrict(t *testing.T) {
	c, err := New(sample())
	require.NoError(t, err)

	t.Run("equal weights", func(t *testing.T) {
		r, err := c.Restrict([]string{"c", "a", "c"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, r.Names())
		assert.Equal(t, 1, r.Weight("a"))
		assert.Equal(t, 1, r.Weight("c"))
		assert.Equal(t, 0, r.Weight("b"))

		rng := rand.New(rand.NewSource(3))
		for range 1000 {
			assert.NotEqual(t, "b", r.Pick(rng).Name)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := c.Restrict([]string{"a", "nope"})
		assert.ErrorIs(t, err, ErrUnknownTask)
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := c.Restrict(nil)
		assert.ErrorIs(t, err, ErrEmptyCatalog)
	})
}

func TestReweight(t *testing.T) {
	c, err := New(sample())
	require.NoError(t, err)

	r, err := c.Reweight(map[string]int{"c": 10})
	require.NoError(t, err)
	assert.Equal(t, 10, r.Weight("c"))
	assert.Equal(t, 6, r.Weight("a"))
	assert.Equal(t, 1, c.Weight("c"), "original catalog untouched")

	_, err = c.Reweight(map[string]int{"x": 1})
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = c.Reweight(map[string]int{"a": -1})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseList(" a, b,,c "))
	assert.Nil(t, ParseList(""))
}
