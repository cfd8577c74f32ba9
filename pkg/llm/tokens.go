package llm

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens estimates the number of tokens in text with the cl100k
// encoding. If the encoding cannot be loaded it falls back to len/4.
func CountTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Str("component", "llm").Msg("could not load tokenizer")
			return
		}
		codec = c
	})
	if codec == nil {
		return len(text) / 4
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// CountRequestTokens estimates the prompt size of a request.
func CountRequestTokens(req Request) int {
	n := CountTokens(req.SystemPrompt)
	for _, t := range req.Conversation {
		n += CountTokens(t.Content)
	}
	return n
}

// countRequestTokens is swapped in tests.
var countRequestTokens = CountRequestTokens

// logPayload logs the request shape at debug level. Tokenizing the prompt is
// not free, so it only happens when debug logging is on.
func logPayload(req Request) {
	if e := log.Debug(); e.Enabled() {
		e.Str("component", "llm").
			Int("turns", len(req.Conversation)).
			Int("prompt_tokens_estimate", countRequestTokens(req)).
			Msg("chat completion payload")
	}
}
