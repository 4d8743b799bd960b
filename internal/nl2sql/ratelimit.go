package nl2sql

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedTranslator keeps calls to the wrapped translator under a
// requests-per-minute ceiling. A call that cannot get a token before its
// context deadline fails with a GenerationError instead of waiting.
type RateLimitedTranslator struct {
	next    Translator
	limiter *rate.Limiter
}

func NewRateLimitedTranslator(next Translator, requestsPerMinute int) Translator {
	if requestsPerMinute <= 0 {
		return next
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedTranslator{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
	}
}

func (t *RateLimitedTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Result{}, generationError("language model rate limit exceeded", err)
	}
	return t.next.Translate(ctx, req)
}
