package decor

import "regexp"

// matchAll runs a rule pattern over [start, end) of text and returns
// absolute submatch index slices. Patterns are line-anchored with (?m) where
// the rule needs full-line context; the caller widens the range to paragraph
// boundaries first so anchors see real line starts.
func matchAll(re *regexp.Regexp, text []byte, start, end int) [][]int {
	if re == nil || start >= end || start < 0 || end > len(text) {
		return nil
	}
	matches := re.FindAllSubmatchIndex(text[start:end], -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([][]int, 0, len(matches))
	for _, m := range matches {
		abs := make([]int, len(m))
		for i, v := range m {
			if v < 0 {
				abs[i] = -1
				continue
			}
			abs[i] = v + start
		}
		out = append(out, abs)
	}
	return out
}

// group extracts capture group i from a submatch index slice. A missing or
// out-of-range group is reported as not-ok and the occurrence is skipped,
// never fatal.
func group(m []int, i int) (int, int, bool) {
	lo := 2 * i
	hi := lo + 1
	if hi >= len(m) || m[lo] < 0 || m[hi] < 0 || m[lo] > m[hi] {
		return 0, 0, false
	}
	return m[lo], m[hi], true
}
