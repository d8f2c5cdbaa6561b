// internal/text/acquire.go
package text

import (
	"context"
)

// DefaultMinLength is the shortest passage accepted as a race text.
const DefaultMinLength = 250

// Acquire draws passages from src until one survives trimming and sanitizing with at
// least minLen characters. Candidates with non-ASCII content or that end up too short
// are discarded and another passage is fetched. A fetch error is returned immediately;
// retrying after it is the caller's decision.
func Acquire(ctx context.Context, src Source, minLen int) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		passage, err := src.RandomPassage(ctx)
		if err != nil {
			return "", err
		}

		cleaned, ok := Sanitize(TrimToSentence(passage.Body, minLen))
		if !ok || len(cleaned) < minLen || cleaned == "" {
			continue
		}
		return cleaned, nil
	}
}
