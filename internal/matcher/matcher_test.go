package matcher

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// reference finds matches with bytes.Index, stepping one byte past each hit
// so overlapping occurrences are kept.
func reference(block []byte, offset int, pattern []byte) []int {
	if len(pattern) == 0 {
		return nil
	}
	var out []int
	for from := 0; from+len(pattern) <= len(block); {
		i := bytes.Index(block[from:], pattern)
		if i < 0 {
			break
		}
		out = append(out, offset+from+i)
		from += i + 1
	}
	return out
}

var conformance = []struct {
	name    string
	block   string
	offset  int
	pattern string
	want    []int
}{
	{"periodic", "ababcababcabab", 0, "abab", []int{0, 5, 10}},
	{"overlapping", "aaaa", 0, "aa", []int{0, 1, 2}},
	{"whole block", "hello", 0, "hello", []int{0}},
	{"offset applied", "xxabxab", 100, "ab", []int{102, 105}},
	{"no match", "abcdef", 0, "xyz", nil},
	{"pattern longer than block", "ab", 0, "abc", nil},
	{"empty pattern", "abc", 0, "", nil},
	{"empty block", "", 0, "a", nil},
	{"single byte", "banana", 0, "a", []int{1, 3, 5}},
	{"suffix only", "abcabd", 0, "abd", []int{3}},
	{"failure chain", "aabaaabaaab", 0, "aabaaab", []int{0, 4}},
	{"binary with zero bytes", "\x00\x01\x00\x01\x00", 0, "\x00\x01\x00", []int{0, 2}},
	{"separator-like bytes", "#a#a#", 0, "#a#", []int{0, 2}},
	{"high bytes", "\xff\xfe\xff\xfe", 7, "\xff\xfe", []int{7, 9}},
}

func runConformance(t *testing.T, m Matcher) {
	t.Helper()
	for _, tc := range conformance {
		t.Run(tc.name, func(t *testing.T) {
			got := m.FindAll([]byte(tc.block), tc.offset, []byte(tc.pattern))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNaiveConformance(t *testing.T) {
	runConformance(t, Naive{})
}

func TestPrefixFunctionConformance(t *testing.T) {
	runConformance(t, PrefixFunction{})
}

func TestStrategiesAgreeOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabets := []string{"ab", "abc", "0123456789", "\x00\x01\xff"}
	for iter := 0; iter < 2000; iter++ {
		alpha := alphabets[iter%len(alphabets)]
		block := randomBytes(rng, alpha, rng.Intn(200))
		pattern := randomBytes(rng, alpha, 1+rng.Intn(6))
		offset := rng.Intn(1000)

		want := reference(block, offset, pattern)
		naive := Naive{}.FindAll(block, offset, pattern)
		kmp := PrefixFunction{}.FindAll(block, offset, pattern)
		require.Equal(t, want, naive, "naive block=%q pattern=%q", block, pattern)
		require.Equal(t, want, kmp, "kmp block=%q pattern=%q", block, pattern)
	}
}

func FuzzStrategiesAgree(f *testing.F) {
	f.Add([]byte("ababcababcabab"), []byte("abab"))
	f.Add([]byte("aaaa"), []byte("aa"))
	f.Add([]byte{0, 0, 0}, []byte{0})
	f.Fuzz(func(t *testing.T, block, pattern []byte) {
		naive := Naive{}.FindAll(block, 0, pattern)
		kmp := PrefixFunction{}.FindAll(block, 0, pattern)
		if fmt.Sprint(naive) != fmt.Sprint(kmp) {
			t.Fatalf("naive %v != kmp %v for block=%q pattern=%q", naive, kmp, block, pattern)
		}
	})
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"", []int{}},
		{"a", []int{0}},
		{"abab", []int{0, 0, 1, 2}},
		{"aabaaab", []int{0, 1, 0, 1, 2, 2, 3}},
		{"abcd", []int{0, 0, 0, 0}},
		{"aaaa", []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefix([]byte(tt.in)))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"naive":  StrategyNaive,
		"NAIVE":  StrategyNaive,
		"kmp":    StrategyKMP,
		" Kmp ":  StrategyKMP,
		"prefix": StrategyKMP,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("regex")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func TestNew(t *testing.T) {
	for _, s := range Strategies {
		m, err := New(s)
		require.NoError(t, err)
		assert.Equal(t, s, m.Strategy())
	}
	_, err := New("boyer-moore")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func randomBytes(rng *rand.Rand, alphabet string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

func BenchmarkMatchers(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	block := randomBytes(rng, "0123456789", 1<<20)
	patterns := map[string][]byte{
		"short":    []byte("1415"),
		"periodic": bytes.Repeat([]byte("1"), 16),
		"long":     block[5000:5064],
	}
	for _, s := range Strategies {
		m, _ := New(s)
		for name, p := range patterns {
			b.Run(fmt.Sprintf("%s/%s", s, name), func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(block)))
				for i := 0; i < b.N; i++ {
					_ = m.FindAll(block, 0, p)
				}
			})
		}
	}
}
