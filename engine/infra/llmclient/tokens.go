package llmclient

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	encodingsMu sync.Mutex
	encodings   = map[string]*tiktoken.Tiktoken{}
)

// countTokens estimates the token count of text under model's encoding,
// falling back to cl100k_base for models tiktoken does not know. Returns
// 0 only for empty text or when no encoding can be loaded at all.
func countTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := encodingFor(model)
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()
	if enc, ok := encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if enc, err = tiktoken.GetEncoding(fallbackEncoding); err != nil {
			return nil
		}
	}
	encodings[model] = enc
	return enc
}
