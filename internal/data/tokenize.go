package data

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dkarras/captrain/internal/vocab"
)

// UnknownToken stands in for caption words missing from the vocabulary, which
// happens when evaluation captions use words never seen in the dev split.
const UnknownToken = "<unk>"

// Tokenize lowercases a caption, strips punctuation and splits it into words.
func Tokenize(caption string) []string {
	caption = strings.ToLower(caption)
	caption = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, caption)
	return strings.Fields(caption)
}

// BuildVocabulary collects the unique words of the given captions into a
// deterministic vocabulary: the unknown and end-of-sequence tokens first,
// then the words in sorted order.
func BuildVocabulary(captions []string, eosToken string) *vocab.Vocabulary {
	seen := make(map[string]bool)
	var words []string
	for _, c := range captions {
		for _, w := range Tokenize(c) {
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	sort.Strings(words)

	tokens := make([]string, 0, len(words)+2)
	tokens = append(tokens, UnknownToken, eosToken)
	tokens = append(tokens, words...)
	return vocab.New(tokens)
}

// Encode converts a caption into class indices terminated by the EOS token.
// Captions longer than maxLen are truncated so the EOS always fits; unknown
// words map to the unknown token.
func Encode(caption string, voc *vocab.Vocabulary, eosToken string, maxLen int) []int {
	words := Tokenize(caption)
	if maxLen > 0 && len(words) > maxLen-1 {
		words = words[:maxLen-1]
	}

	unk, _ := voc.Index(UnknownToken)
	eos, _ := voc.Index(eosToken)

	ids := make([]int, 0, len(words)+1)
	for _, w := range words {
		id, ok := voc.Index(w)
		if !ok {
			id = unk
		}
		ids = append(ids, id)
	}
	return append(ids, eos)
}
