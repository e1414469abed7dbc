// Package tokens estimates token counts and per-model costs for the cascade
// cost ledger. Counting uses the cl100k_base tokenizer when its vocabulary is
// available and degrades to a word-count approximation otherwise.
package tokens

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// Estimation methods. Tiktoken is accurate, simple is a fast approximation.
const (
	MethodTiktoken = "tiktoken"
	MethodSimple   = "simple"
)

// wordTokenRatio accounts for subword tokenization. Most tokenizers produce
// about 1.3 tokens per whitespace-separated word.
const wordTokenRatio = 1.3

var (
	codecOnce   sync.Once
	sharedCodec tokenizer.Codec
)

// codec returns the process-wide cl100k_base codec, or nil when the embedded
// vocabulary cannot be loaded.
func codec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("cl100k_base tokenizer unavailable, using word estimation: %v", err)
			return
		}
		sharedCodec = c
	})
	return sharedCodec
}

// Counter estimates token counts in text content.
type Counter struct {
	method string
	codec  tokenizer.Codec
}

// NewCounter creates a Counter with the specified method. Unknown methods
// select tiktoken; a missing tokenizer vocabulary degrades to simple.
func NewCounter(method string) *Counter {
	if method != MethodTiktoken && method != MethodSimple {
		method = MethodTiktoken
	}
	c := &Counter{method: method}
	if method == MethodTiktoken {
		c.codec = codec()
		if c.codec == nil {
			c.method = MethodSimple
		}
	}
	return c
}

// Count estimates the number of tokens in text. Tokenizer errors fall back
// to the word approximation rather than failing the caller.
func (c *Counter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	if c.codec != nil {
		count, err := c.codec.Count(text)
		if err == nil {
			return count
		}
		log.Debugf("Tokenizer count failed, using word estimate: %v", err)
	}
	return simpleEstimate(text)
}

// Method returns the estimation method in effect.
func (c *Counter) Method() string {
	return c.method
}

// simpleEstimate uses word count times wordTokenRatio, truncated.
func simpleEstimate(text string) int {
	return int(float64(len(strings.Fields(text))) * wordTokenRatio)
}

// Rates holds input and output pricing per 1K tokens in cents.
type Rates struct {
	InputCentsPer1K  float64 `json:"input_cents_per_1k"`
	OutputCentsPer1K float64 `json:"output_cents_per_1k"`
}

// Cost returns the price in cents for a call with the given token counts.
func (r Rates) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000.0*r.InputCentsPer1K +
		float64(outputTokens)/1000.0*r.OutputCentsPer1K
}

// Free reports whether both rates are zero, as for local runtimes.
func (r Rates) Free() bool {
	return r.InputCentsPer1K == 0 && r.OutputCentsPer1K == 0
}

// ModelRates maps model name patterns to per-1K pricing in cents.
var ModelRates = map[string]Rates{
	// OpenAI
	"gpt-4":       {3.0, 6.0},
	"gpt-4-turbo": {1.0, 3.0},
	"gpt-4o":      {0.25, 1.0}, // $2.5/M input, $10/M output
	"gpt-4o-mini": {0.015, 0.06},

	// Anthropic
	"claude-3-haiku":    {0.025, 0.125}, // $0.25/M input, $1.25/M output
	"claude-3.5-haiku":  {0.08, 0.4},
	"claude-3.5-sonnet": {0.3, 1.5},
	"claude-sonnet-4":   {0.3, 1.5},
	"claude-opus-4":     {1.5, 7.5}, // $15/M input, $75/M output

	// Local runtimes cost nothing per token.
	"ollama": {0, 0},
	"llama":  {0, 0},
	"qwen":   {0, 0},
	"phi":    {0, 0},

	// Fallback for unknown models.
	"default": {0.1, 0.4},
}

// RatesFor returns pricing for the specified model. It tries an exact match
// first, then the longest matching prefix so versioned names like
// "claude-3.5-sonnet-20241022" resolve to their base model. Unknown models
// get the default rates.
func RatesFor(model string) Rates {
	model = strings.ToLower(strings.TrimSpace(model))
	if rates, ok := ModelRates[model]; ok {
		return rates
	}

	best := ""
	for pattern := range ModelRates {
		if pattern == "default" || len(pattern) > len(model) {
			continue
		}
		if strings.HasPrefix(model, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return ModelRates[best]
	}
	return ModelRates["default"]
}

// EstimateCost prices a call against the model's rate table entry.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return RatesFor(model).Cost(inputTokens, outputTokens)
}
