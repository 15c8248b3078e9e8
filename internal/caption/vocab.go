package caption

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

var specialTokens = map[string]bool{
	"[PAD]": true, "[UNK]": true, "[CLS]": true, "[SEP]": true,
	"[MASK]": true, "[DEC]": true, "[ENC]": true,
}

var cleanupReplacer = strings.NewReplacer(
	" .", ".", " ?", "?", " !", "!", " ,", ",", " ' ", "'",
	" n't", "n't", " 'm", "'m", " 's", "'s", " 've", "'ve", " 're", "'re",
)

// Vocabulary maps WordPiece ids back to text.
type Vocabulary struct {
	tokens []string
}

// LoadVocabulary reads a vocab.txt file with one token per line; the line
// number is the token id.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		tokens = append(tokens, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return NewVocabulary(tokens), nil
}

func NewVocabulary(tokens []string) *Vocabulary {
	return &Vocabulary{tokens: tokens}
}

func (v *Vocabulary) Size() int { return len(v.tokens) }

// Decode joins word pieces, skipping special and out-of-range ids, and
// removes the spaces WordPiece leaves before punctuation and contractions.
func (v *Vocabulary) Decode(ids []int64) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(v.tokens) {
			continue
		}
		tok := v.tokens[id]
		if specialTokens[tok] {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, "##"); ok {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return strings.TrimSpace(cleanupReplacer.Replace(sb.String()))
}
