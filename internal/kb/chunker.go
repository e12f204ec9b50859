// Package kb indexes reference documents into overlapping text chunks for
// retrieval.
package kb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/swscloud/reviewd/internal/pagetext"
	"github.com/swscloud/reviewd/internal/textnorm"
)

const (
	chunkSize    = 800
	chunkOverlap = 100
	maxChunkLen  = 10000
)

// Chunk is one slice of a source document.
type Chunk struct {
	Index     int
	Text      string
	CharStart int
	CharEnd   int
	PageStart *int
	PageEnd   *int
}

// chunkMeta is the persisted chunk metadata.
type chunkMeta struct {
	ChunkIndex int  `json:"chunk_index"`
	CharStart  int  `json:"char_start"`
	CharEnd    int  `json:"char_end"`
	PageStart  *int `json:"page_start,omitempty"`
	PageEnd    *int `json:"page_end,omitempty"`
}

// Split cuts text into chunkSize-rune windows with chunkOverlap overlap.
// bounds, when present, annotates each chunk with its page span.
func Split(text string, bounds []pagetext.PageBoundary) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	// Page boundaries are byte offsets into the concatenated text; chunk
	// offsets are rune counts. byteOff bridges the two.
	byteOff := make([]int, len(runes)+1)
	for i, r := range runes {
		byteOff[i+1] = byteOff[i] + len(string(r))
	}

	var chunks []Chunk
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		piece := textnorm.TruncateRunes(string(runes[start:end]), maxChunkLen)
		c := Chunk{
			Index:     len(chunks),
			Text:      piece,
			CharStart: start,
			CharEnd:   end,
		}
		if len(bounds) > 0 {
			if p, ok := pagetext.PageAt(bounds, byteOff[start]); ok {
				ps := p
				c.PageStart = &ps
			}
			if p, ok := pagetext.PageAt(bounds, byteOff[end]-1); ok {
				pe := p
				c.PageEnd = &pe
			}
		}
		chunks = append(chunks, c)
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Meta renders the chunk's metadata JSON.
func (c Chunk) Meta() string {
	data, err := json.Marshal(chunkMeta{
		ChunkIndex: c.Index,
		CharStart:  c.CharStart,
		CharEnd:    c.CharEnd,
		PageStart:  c.PageStart,
		PageEnd:    c.PageEnd,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Hash is the dedup key of the chunk text.
func (c Chunk) Hash() string {
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:])
}
