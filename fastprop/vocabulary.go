package fastprop

import "strings"

// Vocabulary is the shared word index spec §4.8's text dispatch
// tokenizes through. original_source's textmining/WordIndex.hpp was
// not present in the retrieved reference pack (see DESIGN.md); this
// dictionary is grounded instead on frame.Encoding, the shared
// string<->code dictionary already in this repo for categorical
// columns - a word index is the same data structure applied to tokens
// instead of category labels.
type Vocabulary struct {
	forward map[string]int32
	counts  []int
}

// NewVocabulary returns an empty Vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{forward: make(map[string]int32)}
}

// Tokenize lower-cases and splits s on whitespace, registering any new
// tokens in the vocabulary and returning their codes.
func (v *Vocabulary) Tokenize(s string) []int32 {
	fields := strings.Fields(strings.ToLower(s))
	codes := make([]int32, len(fields))
	for i, f := range fields {
		codes[i] = v.code(f)
	}
	return codes
}

func (v *Vocabulary) code(token string) int32 {
	if c, ok := v.forward[token]; ok {
		v.counts[c]++
		return c
	}
	c := int32(len(v.counts))
	v.forward[token] = c
	v.counts = append(v.counts, 1)
	return c
}

// DocumentFrequency returns how many times token has been registered
// in this Vocabulary, through Tokenize or the text aggregation. No code
// in this module reads it, and hyperparams.MinDF is not applied here.
func (v *Vocabulary) DocumentFrequency(token string) int {
	c, ok := v.forward[strings.ToLower(token)]
	if !ok {
		return 0
	}
	return v.counts[c]
}
