// Package tokens counts text tokens for transcript accounting and the
// status line total. Counting uses the cl100k_base encoding; when the
// encoder cannot be loaded (offline first run, unsupported platform)
// it degrades to a character heuristic rather than failing.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

// initEncoder loads the tiktoken encoder once. GetEncoding fetches the
// BPE table on first use, so the error path is a real possibility.
func initEncoder() error {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Count returns the number of tokens in text.
func Count(text string) int {
	if err := initEncoder(); err != nil {
		return Estimate(text)
	}
	return len(encoder.Encode(text, nil, nil))
}

// Estimate approximates a token count without the encoder, at roughly
// four characters per token. Exposed so callers can label estimated
// totals differently from exact ones.
func Estimate(text string) int {
	return len(text) / 4
}
