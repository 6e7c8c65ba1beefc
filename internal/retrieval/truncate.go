package retrieval

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizerEncoding is the BPE encoding used for chunk budgeting. The budget
// is a guardrail, not an exact model contract, so one encoding for all
// providers is acceptable.
const tokenizerEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countTokens returns the token count of text. If the tokenizer cannot be
// loaded (offline environments), it falls back to a 4-characters-per-token
// estimate rather than failing retrieval.
func countTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(tokenizerEncoding)
		if err == nil {
			enc = e
		}
	})
	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// TruncateAtSentence truncates text to at most budget tokens, cutting only
// at sentence boundaries. The first sentence is always kept whole even if it
// alone exceeds the budget: the boundary rule wins over the budget, so a cut
// never happens mid-token. budget <= 0 disables truncation.
func TruncateAtSentence(text string, budget int) string {
	if budget <= 0 || countTokens(text) <= budget {
		return text
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return text
	}

	var b strings.Builder
	used := 0
	for i, s := range sentences {
		n := countTokens(s)
		if i > 0 && used+n > budget {
			break
		}
		b.WriteString(s)
		used += n
	}
	return strings.TrimRight(b.String(), " ")
}

// splitSentences splits text after '.', '!', '?' or newline, keeping the
// terminator (and one trailing space) with the preceding sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		end := i + 1
		// Absorb one following space so rejoining is lossless.
		if end < len(runes) && runes[end] == ' ' {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
