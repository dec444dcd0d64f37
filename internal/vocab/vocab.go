// Package vocab loads and queries the index-to-token table shared by the
// data prepare step, the caption decoder and the model's output layer.
package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Vocabulary is an ordered list of token strings. The position of a token is
// its class index in the model's output distribution. It is loaded once at
// process start and never mutated.
type Vocabulary struct {
	tokens  []string
	indices map[string]int
}

// New builds a vocabulary from an ordered token list. Duplicate tokens keep
// their first index.
func New(tokens []string) *Vocabulary {
	v := &Vocabulary{
		tokens:  tokens,
		indices: make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		if _, ok := v.indices[tok]; !ok {
			v.indices[tok] = i
		}
	}
	return v
}

// Load reads a vocabulary file and returns the token ID -> string mapping.
// The JSON format is {"0": "the", "1": "a", ...} where keys are string token
// IDs. A missing or unparsable file is fatal to the run.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing vocabulary JSON: %w", err)
	}

	maxID := -1
	for k := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid token ID %q: %w", k, err)
		}
		if id > maxID {
			maxID = id
		}
	}

	tokens := make([]string, maxID+1)
	for k, v := range raw {
		id, _ := strconv.Atoi(k)
		tokens[id] = v
	}

	return New(tokens), nil
}

// Save writes the vocabulary in the same JSON map format Load expects.
func (v *Vocabulary) Save(path string) error {
	raw := make(map[string]string, len(v.tokens))
	for i, tok := range v.tokens {
		raw[strconv.Itoa(i)] = tok
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vocabulary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing vocabulary: %w", err)
	}
	return nil
}

// Len returns the number of classes.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Token maps a class index to its token string.
func (v *Vocabulary) Token(id int) (string, error) {
	if id < 0 || id >= len(v.tokens) {
		return "", fmt.Errorf("token ID %d out of range (vocabulary size %d)", id, len(v.tokens))
	}
	return v.tokens[id], nil
}

// Index maps a token string to its class index.
func (v *Vocabulary) Index(tok string) (int, bool) {
	id, ok := v.indices[tok]
	return id, ok
}
