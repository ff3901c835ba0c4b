package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// PlateAlphabet is the allow-list used for plate reads.
const PlateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// defaultTokens is the fallback charset when no dictionary is configured.
const defaultTokens = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Charset maps model class indices to tokens. Class 0 is the CTC blank and
// class i (i >= 1) is Tokens[i-1].
type Charset struct {
	Tokens       []string
	TokenToIndex map[string]int
}

func newCharset(tokens []string) *Charset {
	toIdx := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, ok := toIdx[t]; !ok {
			toIdx[t] = i
		}
	}
	return &Charset{Tokens: tokens, TokenToIndex: toIdx}
}

// DefaultCharset returns the built-in 0-9A-Z charset.
func DefaultCharset() *Charset {
	tokens := make([]string, 0, len(defaultTokens))
	for _, r := range defaultTokens {
		tokens = append(tokens, string(r))
	}
	return newCharset(tokens)
}

// LoadCharset loads a dictionary file where each non-empty line is a token.
// Surrounding whitespace and a leading UTF-8 BOM are removed.
func LoadCharset(path string) (*Charset, error) {
	if path == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: operator-provided dictionary path
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close dictionary", "path", path, "error", err)
		}
	}()

	scanner := bufio.NewScanner(f)
	tokens := make([]string, 0, 64)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if line = strings.TrimSpace(line); line != "" {
			tokens = append(tokens, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("dictionary is empty: %s", path)
	}
	return newCharset(tokens), nil
}

// Size returns the number of tokens, excluding the blank.
func (c *Charset) Size() int { return len(c.Tokens) }

// Classes returns the number of model classes including the blank.
func (c *Charset) Classes() int { return len(c.Tokens) + 1 }

// Token returns the token for a model class, or "" for the blank and
// unknown classes.
func (c *Charset) Token(class int) string {
	if c == nil || class < 1 || class > len(c.Tokens) {
		return ""
	}
	return c.Tokens[class-1]
}

// AllowMask returns a per-class mask of length classes that admits the blank
// and every class whose token is a single rune contained in allow. An empty
// allow admits every class.
func (c *Charset) AllowMask(allow string, classes int) []bool {
	if allow == "" {
		return nil
	}
	mask := make([]bool, classes)
	if classes > 0 {
		mask[0] = true
	}
	for class := 1; class < classes; class++ {
		tok := c.Token(class)
		if tok != "" && len([]rune(tok)) == 1 && strings.Contains(allow, tok) {
			mask[class] = true
		}
	}
	return mask
}

// Decode maps collapsed class indices to text.
func (c *Charset) Decode(classes []int) string {
	var b strings.Builder
	for _, class := range classes {
		b.WriteString(c.Token(class))
	}
	return b.String()
}
