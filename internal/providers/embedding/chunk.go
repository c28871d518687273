package embedding

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

type Chunk struct {
	Text      string
	TokenSize int
	Index     int
}

type ChunkerConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultChunkerConfig keeps chunks well under the 8191-token input limit of
// the OpenAI embedding models.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens:     2000,
		OverlapTokens: 100,
	}
}

type chunker struct {
	enc *tiktoken.Tiktoken
	cfg ChunkerConfig
}

// ChunkText packs whole sentences into chunks of at most cfg.MaxTokens, carrying
// cfg.OverlapTokens worth of trailing sentences into the next chunk. A sentence
// longer than the limit is cut on token boundaries.
func ChunkText(text string, cfg ChunkerConfig, enc *tiktoken.Tiktoken) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c := chunker{enc: enc, cfg: cfg}
	sentences := splitSentences(text)

	var (
		chunks  []Chunk
		current strings.Builder
		size    int
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:      strings.TrimSpace(current.String()),
			TokenSize: size,
			Index:     len(chunks),
		})
		current.Reset()
		size = 0
	}

	for i, sentence := range sentences {
		n := c.count(sentence)

		if n > cfg.MaxTokens {
			flush()
			for _, part := range c.slice(sentence) {
				part.Index = len(chunks)
				part.Text = strings.TrimSpace(part.Text)
				chunks = append(chunks, part)
			}
			continue
		}

		if size+n > cfg.MaxTokens && current.Len() > 0 {
			flush()
			overlap := c.overlap(sentences, i)
			current.WriteString(overlap)
			size = c.count(overlap)
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
		size += n
	}
	flush()

	return chunks
}

func (c chunker) count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// slice cuts text into MaxTokens-sized token windows.
func (c chunker) slice(text string) []Chunk {
	ids := c.enc.Encode(text, nil, nil)

	var parts []Chunk
	for start := 0; start < len(ids); start += c.cfg.MaxTokens {
		end := min(start+c.cfg.MaxTokens, len(ids))
		parts = append(parts, Chunk{
			Text:      c.enc.Decode(ids[start:end]),
			TokenSize: end - start,
		})
	}
	return parts
}

func (c chunker) overlap(sentences []string, idx int) string {
	var (
		picked []string
		size   int
	)
	for i := idx - 1; i >= 0 && size < c.cfg.OverlapTokens; i-- {
		picked = append([]string{sentences[i]}, picked...)
		size += c.count(sentences[i])
	}
	return strings.Join(picked, " ")
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '．': true, '…': true,
}

// splitSentences splits on paragraph breaks, then on sentence-ending punctuation
// followed by whitespace, end of text or a CJK character.
func splitSentences(text string) []string {
	var sentences []string

	for _, para := range splitParagraphs(text) {
		var current strings.Builder
		runes := []rune(para)

		for i, r := range runes {
			current.WriteRune(r)
			if !sentenceEnders[r] {
				continue
			}
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || isCJK(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		// single newlines inside a paragraph are soft wraps
		p = strings.TrimSpace(strings.ReplaceAll(p, "\n", " "))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
