package tracking

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// ColorAllocator picks the tint of a new session.
type ColorAllocator interface {
	Pick(routeID string) string
}

// ShuffleAllocator shuffles the palette and samples one color per pick.
type ShuffleAllocator struct {
	palette []string

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewShuffleAllocator(palette []string, seed int64) *ShuffleAllocator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ShuffleAllocator{palette: append([]string(nil), palette...), rnd: rand.New(rand.NewSource(seed))}
}

func (a *ShuffleAllocator) Pick(string) string {
	if len(a.palette) == 0 {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	shuffled := append([]string(nil), a.palette...)
	a.rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[a.rnd.Intn(len(shuffled))]
}

// RoundRobinAllocator walks the palette in order.
type RoundRobinAllocator struct {
	palette []string

	mu   sync.Mutex
	next int
}

func NewRoundRobinAllocator(palette []string) *RoundRobinAllocator {
	return &RoundRobinAllocator{palette: append([]string(nil), palette...)}
}

func (a *RoundRobinAllocator) Pick(string) string {
	if len(a.palette) == 0 {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.palette[a.next%len(a.palette)]
	a.next++
	return c
}

// HashAllocator always gives a route the same color.
type HashAllocator struct {
	palette []string
}

func NewHashAllocator(palette []string) *HashAllocator {
	return &HashAllocator{palette: append([]string(nil), palette...)}
}

func (a *HashAllocator) Pick(routeID string) string {
	if len(a.palette) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(routeID))
	return a.palette[h.Sum32()%uint32(len(a.palette))]
}

// NewAllocator builds the allocator named by strategy: shuffle, round-robin or hash.
func NewAllocator(strategy string, palette []string) (ColorAllocator, error) {
	switch strategy {
	case "", "shuffle":
		return NewShuffleAllocator(palette, 0), nil
	case "round-robin":
		return NewRoundRobinAllocator(palette), nil
	case "hash":
		return NewHashAllocator(palette), nil
	default:
		return nil, fmt.Errorf("unknown color strategy %q", strategy)
	}
}
