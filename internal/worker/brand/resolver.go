package brand

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultThreshold is the minimum similarity a fuzzy match must reach
	DefaultThreshold = 0.60

	MinThreshold = 0.35
	MaxThreshold = 0.70
)

// Brand is a configured brand with its per-platform accounts
type Brand struct {
	Key      string
	Accounts map[domain.Platform]domain.Account
}

type entry struct {
	normalized string
	brand      Brand
}

// Match describes how a brand name was resolved
type Match struct {
	Key   string
	Score float64
	Exact bool
}

// Resolver maps free-text brand names to configured accounts
type Resolver struct {
	entries   []entry
	threshold float64
}

// NewResolver builds a resolver over the configured brands.
// Keys that collide after normalization are a configuration error.
func NewResolver(brands []Brand, threshold float64) (*Resolver, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < MinThreshold || threshold > MaxThreshold {
		return nil, domain.Errorf(domain.KindConfig, "brand match threshold %.2f outside [%.2f, %.2f]", threshold, MinThreshold, MaxThreshold)
	}

	seen := make(map[string]string, len(brands))
	entries := make([]entry, 0, len(brands))
	for _, b := range brands {
		n := Normalize(b.Key)
		if n == "" {
			return nil, domain.Errorf(domain.KindConfig, "brand key %q has no letters or digits", b.Key)
		}
		if other, ok := seen[n]; ok {
			return nil, domain.Errorf(domain.KindConfig, "brand keys %q and %q are indistinguishable", other, b.Key)
		}
		seen[n] = b.Key
		entries = append(entries, entry{normalized: n, brand: b})
	}

	// deterministic iteration regardless of config map order
	sort.Slice(entries, func(i, j int) bool { return entries[i].normalized < entries[j].normalized })

	return &Resolver{entries: entries, threshold: threshold}, nil
}

// Normalize lower-cases s and drops everything except ASCII letters and digits
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity is the difflib matching ratio of two normalized strings
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Match finds the configured brand for name
func (r *Resolver) Match(name string) (*Brand, Match, error) {
	n := Normalize(name)
	if n == "" {
		return nil, Match{}, domain.Errorf(domain.KindUnresolvedAccount, "brand name %q is empty after normalization", name)
	}

	for i := range r.entries {
		if r.entries[i].normalized == n {
			return &r.entries[i].brand, Match{Key: r.entries[i].brand.Key, Score: 1, Exact: true}, nil
		}
	}

	best := -1.0
	var leaders []int
	for i := range r.entries {
		score := Similarity(n, r.entries[i].normalized)
		switch {
		case score > best:
			best = score
			leaders = []int{i}
		case score == best:
			leaders = append(leaders, i)
		}
	}

	if len(leaders) == 0 {
		return nil, Match{}, domain.Errorf(domain.KindUnresolvedAccount, "no brands configured")
	}

	if len(leaders) > 1 {
		keys := make([]string, len(leaders))
		for i, idx := range leaders {
			keys[i] = r.entries[idx].brand.Key
		}
		return nil, Match{Score: best}, domain.Errorf(domain.KindUnresolvedAccount,
			"brand %q is ambiguous: %s tie at %.2f", name, strings.Join(keys, ", "), best)
	}

	if best < r.threshold {
		return nil, Match{Key: r.entries[leaders[0]].brand.Key, Score: best}, domain.Errorf(domain.KindUnresolvedAccount,
			"brand %q has no match above %.2f (closest %q at %.2f)", name, r.threshold, r.entries[leaders[0]].brand.Key, best)
	}

	e := &r.entries[leaders[0]]
	return &e.brand, Match{Key: e.brand.Key, Score: best}, nil
}

// Resolve returns the account for name on platform
func (r *Resolver) Resolve(name string, platform domain.Platform) (domain.Account, Match, error) {
	b, m, err := r.Match(name)
	if err != nil {
		return domain.Account{}, m, err
	}

	account, ok := b.Accounts[platform]
	if !ok {
		return domain.Account{}, m, domain.Errorf(domain.KindUnresolvedAccount,
			"brand %q has no %s account configured", b.Key, platform)
	}

	return account, m, nil
}

// Threshold returns the configured similarity threshold
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

func (m Match) String() string {
	if m.Exact {
		return fmt.Sprintf("%s (exact)", m.Key)
	}
	return fmt.Sprintf("%s (%.2f)", m.Key, m.Score)
}
