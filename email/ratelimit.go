package email

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type Gate int

const (
	CreateTemplateGate Gate = iota
	SendGate
)

// SES allows one CreateEmailTemplate call per second.
const createTemplateRate = 1

// RateLimiter holds one token bucket per Gate. Acquire is safe for concurrent
// use; SetSendRate should only be called between sends.
type RateLimiter struct {
	createTemplate *rate.Limiter
	send           *rate.Limiter
}

func NewRateLimiter(sendRate int) (*RateLimiter, error) {
	if sendRate <= 0 {
		return nil, fmt.Errorf("%w: send rate %d", ErrInvalidRate, sendRate)
	}
	return &RateLimiter{
		createTemplate: rate.NewLimiter(createTemplateRate, createTemplateRate),
		send:           rate.NewLimiter(rate.Limit(sendRate), sendRate),
	}, nil
}

// Acquire blocks until n tokens are available from gate, or ctx is done.
// Requests larger than the bucket are satisfied in bucket-sized waits.
func (rl *RateLimiter) Acquire(ctx context.Context, gate Gate, n int) error {
	limiter := rl.limiter(gate)
	burst := limiter.Burst()

	for n > 0 {
		chunk := min(n, burst)
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (rl *RateLimiter) SetSendRate(sendRate int) error {
	if sendRate <= 0 {
		return fmt.Errorf("%w: send rate %d", ErrInvalidRate, sendRate)
	}
	if rl.send.Burst() != sendRate {
		rl.send.SetLimit(rate.Limit(sendRate))
		rl.send.SetBurst(sendRate)
	}
	return nil
}

func (rl *RateLimiter) SendRate() int {
	return rl.send.Burst()
}

func (rl *RateLimiter) limiter(gate Gate) *rate.Limiter {
	if gate == CreateTemplateGate {
		return rl.createTemplate
	}
	return rl.send
}
