// Package scheduler holds the weighted task catalog simulated clients draw from.
package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

var (
	// ErrUnknownTask is returned when a task name is not part of the catalog.
	ErrUnknownTask = errors.New("scheduler: unknown task")
	// ErrInvalidWeight is returned for weights below 1.
	ErrInvalidWeight = errors.New("scheduler: weight must be positive")
	// ErrEmptyCatalog is returned when no task is left to draw from.
	ErrEmptyCatalog = errors.New("scheduler: no tasks")
)

// Entry binds a task name and its relative weight to a value, usually the
// operation executed when the task is drawn.
type Entry[T any] struct {
	Name   string
	Weight int
	Value  T
}

// Catalog is an immutable weighted table. Draws are safe for concurrent use
// as long as each goroutine passes its own rng.
type Catalog[T any] struct {
	entries    []Entry[T]
	cumulative []int
	total      int
}

// New validates entries and builds the cumulative weight table.
func New[T any](entries []Entry[T]) (*Catalog[T], error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog[T]{
		entries:    make([]Entry[T], len(entries)),
		cumulative: make([]int, len(entries)),
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if seen[e.Name] {
			return nil, fmt.Errorf("scheduler: duplicate task %q", e.Name)
		}
		seen[e.Name] = true
		if e.Weight < 1 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidWeight, e.Name, e.Weight)
		}
		c.entries[i] = e
		c.total += e.Weight
		c.cumulative[i] = c.total
	}
	return c, nil
}

// Pick draws an entry with probability proportional to its weight.
func (c *Catalog[T]) Pick(rng *rand.Rand) Entry[T] {
	n := rng.Intn(c.total)
	i := sort.Search(len(c.cumulative), func(i int) bool { return c.cumulative[i] > n })
	return c.entries[i]
}

// Restrict narrows the catalog to names, each with weight 1.
func (c *Catalog[T]) Restrict(names []string) (*Catalog[T], error) {
	var narrowed []Entry[T]
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		e, ok := c.lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
		}
		e.Weight = 1
		narrowed = append(narrowed, e)
	}
	return New(narrowed)
}

// Reweight returns a copy of the catalog with the given weights overridden.
func (c *Catalog[T]) Reweight(weights map[string]int) (*Catalog[T], error) {
	for name := range weights {
		if _, ok := c.lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
		}
	}
	entries := make([]Entry[T], len(c.entries))
	for i, e := range c.entries {
		if w, ok := weights[e.Name]; ok {
			e.Weight = w
		}
		entries[i] = e
	}
	return New(entries)
}

func (c *Catalog[T]) lookup(name string) (Entry[T], bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry[T]{}, false
}

// Names returns the task names in catalog order.
func (c *Catalog[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Weight returns the weight of name, 0 when absent.
func (c *Catalog[T]) Weight(name string) int {
	e, _ := c.lookup(name)
	return e.Weight
}

// Share returns the expected fraction of draws that select name.
func (c *Catalog[T]) Share(name string) float64 {
	return float64(c.Weight(name)) / float64(c.total)
}

// TotalWeight returns the sum of all weights.
func (c *Catalog[T]) TotalWeight() int {
	return c.total
}

// ParseList splits a comma separated task list, dropping blanks.
func ParseList(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
