package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/mabumusa1/ses-plugin/ops"
	"github.com/mabumusa1/ses-plugin/types"
)

const DefaultQuotaCacheTtl = 24 * time.Hour

// QuotaState is a snapshot of the SES account's sending limits.
type QuotaState struct {
	MaxSendRate     float64
	Max24HourSend   float64
	SentLast24Hours float64

	// Remaining is the part of the 24 hour quota still available after
	// applying the configured types.Capacity.
	Remaining int64

	// Unlimited is set when SES reports a negative Max24HourSend.
	Unlimited      bool
	SendingEnabled bool
	Updated        time.Time
}

func (qs *QuotaState) Exhausted() bool {
	return !qs.Unlimited && qs.Remaining <= 0
}

// SendRate returns the whole number of sends allowed per second, at least 1.
func (qs *QuotaState) SendRate() int {
	return max(1, int(qs.MaxSendRate))
}

// QuotaCache stores a QuotaState shared between processes or transport
// instances. GetQuota returns nil, nil when nothing is cached.
type QuotaCache interface {
	GetQuota(ctx context.Context) (*QuotaState, error)
	SetQuota(ctx context.Context, state *QuotaState, ttl time.Duration) error
}

type QuotaChecker interface {
	CheckCapacity(ctx context.Context) (*QuotaState, error)
}

// SesQuotaGate checks the SES account quota before each send, querying SES
// only when Cache holds no unexpired state.
type SesQuotaGate struct {
	Client   SesV2Api
	Cache    QuotaCache
	Ttl      time.Duration
	Capacity types.Capacity

	// RateOverride replaces the send rate reported by SES when positive.
	RateOverride int

	Now       func() time.Time
	OnRefresh func(ctx context.Context, state *QuotaState) error
	Log       *log.Logger
}

func NewSesQuotaGate(
	client SesV2Api,
	cache QuotaCache,
	ttl time.Duration,
	capacity types.Capacity,
	logger *log.Logger,
) *SesQuotaGate {
	if ttl <= 0 {
		ttl = DefaultQuotaCacheTtl
	}
	return &SesQuotaGate{
		Client:   client,
		Cache:    cache,
		Ttl:      ttl,
		Capacity: capacity,
		Now:      time.Now,
		Log:      logger,
	}
}

func (g *SesQuotaGate) CheckCapacity(
	ctx context.Context,
) (state *QuotaState, err error) {
	if state, err = g.Cache.GetQuota(ctx); err != nil {
		g.Log.Printf("ignoring quota cache read failure: %s", err)
		state = nil
	}
	if state == nil {
		if state, err = g.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	if err = checkExhausted(state); err != nil {
		return nil, err
	}
	return state, nil
}

// TestConnection verifies the account can send right now, bypassing the cache
// for the query but updating it with the result.
func (g *SesQuotaGate) TestConnection(ctx context.Context) error {
	state, err := g.Refresh(ctx)
	if err != nil {
		return err
	} else if !state.SendingEnabled {
		return fatalError(ErrSendingDisabled)
	}
	return checkExhausted(state)
}

// Refresh queries SES for the current quota and stores it in the cache.
func (g *SesQuotaGate) Refresh(ctx context.Context) (*QuotaState, error) {
	output, err := g.Client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, transportError(
			ops.AwsError("failed to get AWS account info", err),
		)
	} else if output.SendQuota == nil {
		return nil, transportError(
			fmt.Errorf("AWS account info is missing the send quota"),
		)
	}
	quota := output.SendQuota

	state := &QuotaState{
		MaxSendRate:     quota.MaxSendRate,
		Max24HourSend:   quota.Max24HourSend,
		SentLast24Hours: quota.SentLast24Hours,
		Unlimited:       quota.Max24HourSend < 0,
		SendingEnabled:  output.SendingEnabled,
		Updated:         g.now(),
	}
	if g.RateOverride > 0 {
		state.MaxSendRate = float64(g.RateOverride)
	}
	if !state.Unlimited {
		maxSendable := g.Capacity.MaxAvailable(int64(quota.Max24HourSend))
		state.Remaining = maxSendable - int64(quota.SentLast24Hours)
	}

	if err := g.Cache.SetQuota(ctx, state, g.Ttl); err != nil {
		g.Log.Printf("failed to cache quota: %s", err)
	}
	if g.OnRefresh != nil {
		if err := g.OnRefresh(ctx, state); err != nil {
			g.Log.Printf("quota refresh observer failed: %s", err)
		}
	}
	return state, nil
}

func (g *SesQuotaGate) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func checkExhausted(state *QuotaState) error {
	if state.Exhausted() {
		return fatalError(fmt.Errorf(
			"%w: %d max, %d sent",
			ErrQuotaExceeded,
			int64(state.Max24HourSend),
			int64(state.SentLast24Hours),
		))
	}
	return nil
}
