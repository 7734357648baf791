// Package ctxwindow implements the per-category token-budgeted context
// window and trimming policy of spec.md §3/§4.7 (C7). Grounded on hector's
// pkg/utils.TokenCounter (tiktoken-go, per-model encoding cache) for exact
// counting and on its fixed-ratio fallback idiom for models with no known
// encoding.
package ctxwindow

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/penguin-run/penguin/pkg/session"
)

// Counter estimates the token cost of a Message. Implementations must be
// safe for concurrent use.
type Counter interface {
	Count(msg session.Message) int
}

const bytesPerImage = 1300

// TiktokenCounter counts tokens with tiktoken-go's BPE encoder, falling back
// to cl100k_base for unrecognized model families — exactly hector's
// pkg/utils.NewTokenCounter behavior. A process-wide encoding cache avoids
// re-initializing the same encoder per session.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

// NewTiktokenCounter returns a Counter for modelID, caching the underlying
// encoder across calls with the same model id.
func NewTiktokenCounter(modelID string) (*TiktokenCounter, error) {
	encodingMu.RLock()
	enc, ok := encodingCache[modelID]
	encodingMu.RUnlock()
	if ok {
		return &TiktokenCounter{enc: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	encodingMu.Lock()
	encodingCache[modelID] = enc
	encodingMu.Unlock()

	return &TiktokenCounter{enc: enc}, nil
}

// Count tokenizes the message text plus a small per-message role overhead,
// and a fixed per-image cost for multi-part (vision) messages — spec.md
// §4.7 "Token counting": "a fixed-ratio estimate (chars/4 + images*1300)"
// is the fallback; when an exact tokenizer is available it is preferred for
// the text portion while still charging the same fixed image cost, since no
// tokenizer in the pack encodes image tokens directly.
func (c *TiktokenCounter) Count(msg session.Message) int {
	const tokensPerMessage = 3
	total := tokensPerMessage + len(c.enc.Encode(string(msg.Role), nil, nil))
	if msg.Text != "" {
		total += len(c.enc.Encode(msg.Text, nil, nil))
	}
	for _, p := range msg.Parts {
		switch p.Type {
		case session.PartText:
			total += len(c.enc.Encode(p.Text, nil, nil))
		case session.PartImage:
			total += bytesPerImage
		}
	}
	return total
}

// EstimatorCounter is the fixed-ratio fallback used when no tokenizer is
// available for the active model (spec.md §4.7): chars/4 plus a flat cost
// per image part.
type EstimatorCounter struct{}

func (EstimatorCounter) Count(msg session.Message) int {
	chars := len(msg.Text)
	images := 0
	for _, p := range msg.Parts {
		switch p.Type {
		case session.PartText:
			chars += len(p.Text)
		case session.PartImage:
			images++
		}
	}
	return chars/4 + images*bytesPerImage
}
