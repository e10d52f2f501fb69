package analysis

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens counts s with the cl100k_base encoding. The BPE ranks are
// embedded, so no download happens at run time. If the encoding cannot be
// loaded it falls back to ApproxTokens.
func CountTokens(s string) int {
	encOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		e, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return ApproxTokens(s)
	}
	return len(enc.Encode(s, nil, nil))
}

// ApproxTokens estimates tokens as one per four bytes
func ApproxTokens(s string) int {
	return (len(s) + 3) / 4
}
