package matcher

// PrefixFunction scans the block once using the failure function of the
// pattern. The classic formulation runs the prefix function over
// pattern + separator + block; here the separator is virtual, so the block
// may contain any byte value including ones that occur in the pattern.
type PrefixFunction struct{}

func (PrefixFunction) Strategy() Strategy { return StrategyKMP }

func (PrefixFunction) FindAll(block []byte, offset int, pattern []byte) []int {
	m := len(pattern)
	if m == 0 || m > len(block) {
		return nil
	}
	pi := Prefix(pattern)

	var matches []int
	j := 0
	for i, c := range block {
		// j == m means the previous byte completed a match; an unmatched
		// separator would force the same fallback.
		for j > 0 && (j == m || c != pattern[j]) {
			j = pi[j-1]
		}
		if c == pattern[j] {
			j++
		}
		if j == m {
			matches = append(matches, offset+i-m+1)
		}
	}
	return matches
}

// Prefix computes the prefix function of s: pi[i] is the length of the
// longest proper prefix of s[:i+1] that is also a suffix of it.
func Prefix(s []byte) []int {
	pi := make([]int, len(s))
	for i := 1; i < len(s); i++ {
		j := pi[i-1]
		for j > 0 && s[i] != s[j] {
			j = pi[j-1]
		}
		if s[i] == s[j] {
			j++
		}
		pi[i] = j
	}
	return pi
}
