package output

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// TokenCounter measures the token cost of serialized output.
// Implementations must be deterministic: the same text always yields the
// same count, so decisions are reproducible.
type TokenCounter interface {
	Count(text string) int
}

// charsPerToken is the byte-to-token ratio the heuristic counter assumes.
// Four characters per token is the common approximation for English-like
// JSON and CSV payloads.
const charsPerToken = 4

// HeuristicCounter estimates tokens from byte length alone. It is the
// default counter: fast, dependency-free at runtime, and accurate enough
// for threshold comparisons on structured data.
type HeuristicCounter struct{}

// Count returns the ceiling of len(text)/4.
func (HeuristicCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// WordPieceCounter counts tokens with a BERT-style WordPiece vocabulary.
// Use it when decisions must line up with a real model's tokenizer rather
// than the byte-length heuristic.
type WordPieceCounter struct {
	t        *tk.Tokenizer
	fallback HeuristicCounter
}

// NewWordPieceCounter loads a vocab file and builds a WordPiece tokenizer
// with BERT normalization and pre-tokenization.
func NewWordPieceCounter(vocabPath string) (*WordPieceCounter, error) {
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("failed to load wordpiece vocab from %q: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	return &WordPieceCounter{t: t}, nil
}

// Count tokenizes the text and returns the token count. Encoding failures
// fall back to the byte-length heuristic so Count stays total.
func (c *WordPieceCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	enc, err := c.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return c.fallback.Count(text)
	}
	return len(enc.GetIds())
}
