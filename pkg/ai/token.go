package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	mu        sync.Mutex
	encodings = map[string]*tiktoken.Tiktoken{}
)

// CountTokens returns the number of tokens in text for the given model.
// Unknown models are counted with cl100k_base.
func CountTokens(model string, text string) (int, error) {
	tkm, err := encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(tkm.Encode(text, nil, nil)), nil
}

// encodingFor loads each encoding once; building the BPE tables is slow.
func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	mu.Lock()
	defer mu.Unlock()

	if tkm, ok := encodings[model]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	encodings[model] = tkm
	return tkm, nil
}

// EstimateCost prices a call at a flat per-1k-token rate in USDC, the unit
// the demo agent quotes in its payment requirements.
func EstimateCost(tokens int, pricePer1k float64) float64 {
	return (float64(tokens) / 1000.0) * pricePer1k
}
