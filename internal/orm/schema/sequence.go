package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SystemSequence is the name of the repository's default sequence
const SystemSequence = "system"

// Seq generates values for a sequence
type Seq interface {
	Next() (interface{}, error)
	Current() interface{}
}

// SequenceMetaData describes a named value generator
type SequenceMetaData struct {
	name      string
	source    string
	strategy  ValueStrategy
	plugin    string
	initial   int64
	increment int64
	allocate  int

	mu       sync.Mutex
	instance Seq
}

func newSequenceMetaData(name string) *SequenceMetaData {
	return &SequenceMetaData{
		name:      name,
		strategy:  StrategyNative,
		initial:   1,
		increment: 1,
		allocate:  50,
	}
}

// Name returns the sequence name
func (s *SequenceMetaData) Name() string { return s.name }

// Source returns where the sequence was declared
func (s *SequenceMetaData) Source() string { return s.source }

// SetSource records where the sequence was declared
func (s *SequenceMetaData) SetSource(source string) { s.source = source }

// Strategy returns the generation strategy
func (s *SequenceMetaData) Strategy() ValueStrategy { return s.strategy }

// SetStrategy sets the generation strategy
func (s *SequenceMetaData) SetStrategy(v ValueStrategy) {
	s.strategy = v
	s.reset()
}

// Plugin returns the backend sequence name or plugin string
func (s *SequenceMetaData) Plugin() string { return s.plugin }

// SetPlugin sets the backend sequence name or plugin string
func (s *SequenceMetaData) SetPlugin(plugin string) { s.plugin = plugin }

// Initial returns the first value of counter sequences
func (s *SequenceMetaData) Initial() int64 { return s.initial }

// SetInitial sets the first value
func (s *SequenceMetaData) SetInitial(v int64) {
	s.initial = v
	s.reset()
}

// Increment returns the step of counter sequences
func (s *SequenceMetaData) Increment() int64 { return s.increment }

// SetIncrement sets the step
func (s *SequenceMetaData) SetIncrement(v int64) {
	s.increment = v
	s.reset()
}

// Allocate returns the number of values reserved per backend round trip
func (s *SequenceMetaData) Allocate() int { return s.allocate }

// SetAllocate sets the allocation size
func (s *SequenceMetaData) SetAllocate(n int) { s.allocate = n }

func (s *SequenceMetaData) reset() {
	s.mu.Lock()
	s.instance = nil
	s.mu.Unlock()
}

// Instance returns the generator, creating it on first use
func (s *SequenceMetaData) Instance() (Seq, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.instance != nil {
		return s.instance, nil
	}

	switch s.strategy {
	case StrategyNative, StrategyIncrement, StrategySequence:
		if s.increment == 0 {
			return nil, fmt.Errorf("sequence %s: increment must not be zero", s.name)
		}
		s.instance = &counterSeq{next: s.initial, step: s.increment}
	case StrategyUUIDString:
		s.instance = &uuidSeq{}
	case StrategyUUIDHex:
		s.instance = &uuidSeq{hex: true}
	default:
		return nil, &UnsupportedError{Type: s.name, Feature: "sequence strategy " + s.strategy.String()}
	}
	return s.instance, nil
}

func (s *SequenceMetaData) String() string {
	return s.name
}

type counterSeq struct {
	mu   sync.Mutex
	next int64
	step int64
	cur  int64
	used bool
}

func (c *counterSeq) Next() (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur = c.next
	c.next += c.step
	c.used = true
	return c.cur, nil
}

func (c *counterSeq) Current() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.used {
		return nil
	}
	return c.cur
}

type uuidSeq struct {
	mu  sync.Mutex
	hex bool
	cur string
}

func (u *uuidSeq) Next() (interface{}, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	v := id.String()
	if u.hex {
		v = strings.ReplaceAll(v, "-", "")
	}

	u.mu.Lock()
	u.cur = v
	u.mu.Unlock()
	return v, nil
}

func (u *uuidSeq) Current() interface{} {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cur == "" {
		return nil
	}
	return u.cur
}
