package order

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// NumberSource issues human-readable order numbers.
type NumberSource interface {
	Next() string
}

const (
	defaultNumberCapacity = 1_000_000
	numberFalsePositive   = 0.001
	maxNumberDraws        = 8
)

// NumberGenerator issues numbers of the form ORD-<unix millis>-<3 digits>.
//
// Numbers already issued by this generator are remembered in a bloom filter
// and redrawn, so a single process does not hand out the same number twice.
// Uniqueness across processes is enforced by storage.
type NumberGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	intn   func(int) int
	issued *bloom.BloomFilter
}

// NewNumberGenerator creates a generator sized for capacity numbers. A zero
// capacity selects the default.
func NewNumberGenerator(capacity uint) *NumberGenerator {
	if capacity == 0 {
		capacity = defaultNumberCapacity
	}
	return &NumberGenerator{
		now:    time.Now,
		intn:   rand.IntN,
		issued: bloom.NewWithEstimates(capacity, numberFalsePositive),
	}
}

// Next returns a fresh order number.
func (g *NumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var n string
	for range maxNumberDraws {
		n = formatNumber(g.now(), g.intn(1000))
		if !g.issued.TestString(n) {
			break
		}
	}
	g.issued.AddString(n)
	return n
}

func formatNumber(t time.Time, suffix int) string {
	return fmt.Sprintf("ORD-%d-%03d", t.UnixMilli(), suffix)
}
