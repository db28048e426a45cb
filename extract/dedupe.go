package extract

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"

	"github.com/use-agent/dataflow/models"
)

// Dedupe keeps the first record of every group whose fingerprints are within
// maxDistance bits of each other. Records with different prices or
// different URLs never match.
func Dedupe(records []models.CanonicalRecord, maxDistance int) []models.CanonicalRecord {
	type seen struct {
		fp    uint64
		price float64
		url   string
	}
	kept := records[:0:0]
	var prints []seen
	for _, r := range records {
		fp := Fingerprint(r.Title + " " + r.Summary)
		dup := false
		for _, p := range prints {
			if p.price == r.Price && p.url == r.URL && bits.OnesCount64(p.fp^fp) <= maxDistance {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		prints = append(prints, seen{fp, r.Price, r.URL})
		kept = append(kept, r)
	}
	return kept
}

// Fingerprint is a 64-bit SimHash of text. Latin words are tokens; runs of
// CJK characters contribute overlapping character bigrams since they carry
// no spaces.
func Fingerprint(text string) uint64 {
	tokens := tokenize(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

func tokenize(text string) []string {
	var tokens []string
	var word []rune
	var han []rune

	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, string(word))
			word = word[:0]
		}
	}
	flushHan := func() {
		switch {
		case len(han) == 1:
			tokens = append(tokens, string(han))
		case len(han) > 1:
			for i := 0; i+1 < len(han); i++ {
				tokens = append(tokens, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return tokens
}
