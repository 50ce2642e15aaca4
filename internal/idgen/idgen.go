package idgen

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Prefixes per record kind
const (
	PrefixCommodity = "MED"
	PrefixBlood     = "BLD"
)

const (
	suffixLength = 6
	alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// LocalPattern matches identifiers minted by Generate
var LocalPattern = regexp.MustCompile(`^[A-Z]+-[0-9A-Z]+-L[0-9A-Z]{6}$`)

// Generator mints identifiers for locally created records.
// Uniqueness is probabilistic: millisecond timestamp plus six random
// base36 characters.
type Generator struct {
	mu    sync.Mutex
	now   func() time.Time
	digit func(n int) int
}

// Option configures a Generator
type Option func(*Generator)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the random digit source; fn returns a value in [0, n)
func WithRandom(fn func(n int) int) Option {
	return func(g *Generator) { g.digit = fn }
}

// New creates a generator using the wall clock and crypto/rand
func New(opts ...Option) *Generator {
	g := &Generator{
		now:   time.Now,
		digit: cryptoDigit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns <PREFIX>-<base36 ms timestamp>-L<6 base36 chars>
func (g *Generator) Generate(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := strconv.FormatInt(g.now().UnixMilli(), 36)

	var sb strings.Builder
	sb.Grow(len(prefix) + len(ts) + suffixLength + 3)
	sb.WriteString(strings.ToUpper(prefix))
	sb.WriteByte('-')
	sb.WriteString(strings.ToUpper(ts))
	sb.WriteString("-L")
	for i := 0; i < suffixLength; i++ {
		sb.WriteByte(alphabet[g.digit(len(alphabet))])
	}
	return strings.ToUpper(sb.String())
}

// IsLocal reports whether id has the shape of a locally minted identifier
func IsLocal(id string) bool {
	return LocalPattern.MatchString(id)
}

func cryptoDigit(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		return int(time.Now().UnixNano() % int64(n))
	}
	return int(v.Int64())
}
