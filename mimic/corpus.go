package mimic

import (
	"math/rand/v2"
	"sync"
	"time"
)

// TrainingExample pairs a normalized window with the landmarks seen at the
// same tick. It is never mutated after construction.
type TrainingExample struct {
	Input NormalizedWindow `json:"input"`
	Label LandmarkSnapshot `json:"label"`
	At    time.Time        `json:"at"`
}

// NewTrainingExample deep-copies input and label.
func NewTrainingExample(input NormalizedWindow, label LandmarkSnapshot, at time.Time) TrainingExample {
	return TrainingExample{
		Input: input.clone(),
		Label: append(LandmarkSnapshot(nil), label...),
		At:    at,
	}
}

// Corpus is an insertion-ordered, append-only set of examples. It has no
// size bound; Len is the figure to watch during long recordings.
type Corpus struct {
	mu       sync.Mutex
	examples []TrainingExample
}

func NewCorpus() *Corpus {
	return &Corpus{}
}

func (c *Corpus) Append(ex TrainingExample) {
	c.mu.Lock()
	c.examples = append(c.examples, ex)
	c.mu.Unlock()
}

func (c *Corpus) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.examples)
}

// Snapshot returns the examples in insertion order. The slice is a copy;
// the examples share their immutable buffers.
func (c *Corpus) Snapshot() []TrainingExample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TrainingExample(nil), c.examples...)
}

// Shuffled returns a Fisher-Yates permutation of a snapshot.
func (c *Corpus) Shuffled(rng *rand.Rand) []TrainingExample {
	out := c.Snapshot()
	Shuffle(out, rng)
	return out
}

// Reset drops every example.
func (c *Corpus) Reset() {
	c.mu.Lock()
	c.examples = nil
	c.mu.Unlock()
}

// Shuffle permutes examples in place, walking from the end and swapping each
// slot with a uniformly chosen slot at or before it.
func Shuffle(examples []TrainingExample, rng *rand.Rand) {
	for i := len(examples) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		examples[i], examples[j] = examples[j], examples[i]
	}
}
