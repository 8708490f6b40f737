package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT vocabulary layout: word IDs are hashed into [vocabFloor, vocabSize) to
// stay clear of the special tokens.
const (
	tokenCLS   = 101
	tokenSEP   = 102
	vocabFloor = 1000
	vocabSize  = 30522

	defaultMaxTokens = 256
)

// words lower-cases text and splits it into runs of letters and digits.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordHash(w string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(w))
	return h.Sum64()
}

// wordTokenizer maps words to hashed BERT token IDs in fixed-length sequences
// framed by [CLS] and [SEP].
type wordTokenizer struct {
	maxTokens int
}

func newWordTokenizer(maxTokens int) wordTokenizer {
	if maxTokens < 3 {
		maxTokens = defaultMaxTokens
	}
	return wordTokenizer{maxTokens: maxTokens}
}

// windows splits text into consecutive word windows that each fit one
// sequence. Text without words yields a single empty window.
func (t wordTokenizer) windows(text string) [][]string {
	ws := words(text)
	if len(ws) == 0 {
		return [][]string{nil}
	}
	per := t.maxTokens - 2
	if len(ws) <= per {
		return [][]string{ws}
	}
	var out [][]string
	for start := 0; start < len(ws); start += per {
		out = append(out, ws[start:min(start+per, len(ws))])
	}
	return out
}

// encode fills ids, mask and types (each maxTokens long) for one window.
// Positions past [SEP] are zero padding.
func (t wordTokenizer) encode(window []string, ids, mask, types []int64) {
	clear(ids)
	clear(mask)
	clear(types)
	ids[0], mask[0] = tokenCLS, 1
	pos := 1
	for _, w := range window {
		if pos >= t.maxTokens-1 {
			break
		}
		ids[pos] = int64(vocabFloor + wordHash(w)%(vocabSize-vocabFloor))
		mask[pos] = 1
		pos++
	}
	ids[pos], mask[pos] = tokenSEP, 1
}
