package adapters

import "github.com/pkoukk/tiktoken-go"

// TikTokenTokenizer counts tokens using the same byte-pair-encoding
// scheme OpenAI's chat models use, so the context optimizer's token
// budget matches what the downstream generator will actually see.
type TikTokenTokenizer struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenTokenizer builds a Tokenizer for the given encoding, e.g.
// "cl100k_base" for GPT-4-family models.
func NewTikTokenTokenizer(encoding string) (*TikTokenTokenizer, error) {
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TikTokenTokenizer{tke: tke}, nil
}

// Count implements Tokenizer.
func (t *TikTokenTokenizer) Count(text string) int {
	return len(t.tke.Encode(text, nil, nil))
}

// EstimateTokenCount approximates token count at roughly four
// characters per token, the fallback used whenever no Tokenizer
// adapter is configured.
func EstimateTokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
