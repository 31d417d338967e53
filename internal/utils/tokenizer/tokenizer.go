package tokenizer

import (
	"github.com/tiktoken-go/tokenizer/codec"
)

// CountTokens counts tokens with the o200k_base encoding. Falls back to the
// rough ~4 chars per token heuristic when encoding fails.
func CountTokens(content string) int {
	enc := codec.NewO200kBase()
	tc, err := enc.Count(content)
	if err != nil {
		return len(content) / 4
	}
	return tc
}
