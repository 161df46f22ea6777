//go:build small_tests || all_tests

package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mabumusa1/ses-plugin/ops"
	"github.com/mabumusa1/ses-plugin/testdata"
	"github.com/mabumusa1/ses-plugin/testdoubles"
	tu "github.com/mabumusa1/ses-plugin/testutils"
	"github.com/mabumusa1/ses-plugin/types"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

type quotaGateFixture struct {
	ctx    context.Context
	client *testdoubles.SesV2
	cache  *MemoryQuotaCache
	logs   *tu.Logs
	now    time.Time
	gate   *SesQuotaGate
}

func newQuotaGateFixture() *quotaGateFixture {
	logs, logger := tu.NewLogs()
	f := &quotaGateFixture{
		ctx:    context.Background(),
		client: testdoubles.NewSesV2(),
		logs:   logs,
		now:    testdata.TestTimestamp,
	}
	now := func() time.Time { return f.now }
	f.cache = &MemoryQuotaCache{Now: now}
	capacity, _ := types.NewCapacity(0.75)
	f.client.SetQuota(25.0, 50000.0, 25000.0)

	f.gate = NewSesQuotaGate(f.client, f.cache, time.Hour, capacity, logger)
	f.gate.Now = now
	return f
}

type failingQuotaCache struct{}

func (failingQuotaCache) GetQuota(context.Context) (*QuotaState, error) {
	return nil, errors.New("cache read failed")
}

func (failingQuotaCache) SetQuota(context.Context, *QuotaState, time.Duration) error {
	return errors.New("cache write failed")
}

func TestCheckCapacity(t *testing.T) {
	t.Run("QueriesSesOnCacheMissAndCachesResult", func(t *testing.T) {
		f := newQuotaGateFixture()

		state, err := f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, 1, f.client.GetAccountCalls)
		expected := &QuotaState{
			MaxSendRate:     25.0,
			Max24HourSend:   50000.0,
			SentLast24Hours: 25000.0,
			Remaining:       12500,
			SendingEnabled:  true,
			Updated:         testdata.TestTimestamp,
		}
		assert.DeepEqual(t, expected, state)

		cached, err := f.cache.GetQuota(f.ctx)
		assert.NilError(t, err)
		assert.DeepEqual(t, expected, cached)
	})

	t.Run("UsesCachedStateWithoutRemoteCall", func(t *testing.T) {
		f := newQuotaGateFixture()
		_, err := f.gate.CheckCapacity(f.ctx)
		assert.NilError(t, err)
		f.now = f.now.Add(59 * time.Minute)

		_, err = f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, 1, f.client.GetAccountCalls)
	})

	t.Run("RefreshesAfterTtlExpires", func(t *testing.T) {
		f := newQuotaGateFixture()
		_, err := f.gate.CheckCapacity(f.ctx)
		assert.NilError(t, err)
		f.now = f.now.Add(time.Hour)

		_, err = f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, 2, f.client.GetAccountCalls)
	})

	t.Run("FailsWhenQuotaExhausted", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.client.SetQuota(25.0, 50000.0, 37500.0)

		state, err := f.gate.CheckCapacity(f.ctx)

		assert.Assert(t, is.Nil(state))
		assert.Assert(t, tu.ErrorIs(err, ErrFatalPrecondition))
		assert.Assert(t, tu.ErrorIs(err, ErrQuotaExceeded))
		assert.ErrorContains(t, err, "50000 max, 37500 sent")
	})

	t.Run("FailsWhenCachedQuotaExhausted", func(t *testing.T) {
		f := newQuotaGateFixture()
		exhausted := &QuotaState{MaxSendRate: 1, Max24HourSend: 200, Remaining: 0}
		assert.NilError(t, f.cache.SetQuota(f.ctx, exhausted, time.Hour))

		_, err := f.gate.CheckCapacity(f.ctx)

		assert.Assert(t, tu.ErrorIs(err, ErrQuotaExceeded))
		assert.Equal(t, 0, f.client.GetAccountCalls)
	})

	t.Run("TreatsNegativeMaxAsUnlimited", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.client.SetQuota(14.0, -1.0, 1000000.0)

		state, err := f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Assert(t, state.Unlimited)
		assert.Assert(t, !state.Exhausted())
	})

	t.Run("AppliesRateOverride", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.gate.RateOverride = 5

		state, err := f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, 5, state.SendRate())
	})

	t.Run("NotifiesRefreshObserver", func(t *testing.T) {
		f := newQuotaGateFixture()
		var observed *QuotaState
		f.gate.OnRefresh = func(_ context.Context, state *QuotaState) error {
			observed = state
			return errors.New("observer failed")
		}

		state, err := f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, state, observed)
		f.logs.AssertContains(t, "quota refresh observer failed: observer failed")
	})

	t.Run("LogsCacheFailuresAndQueriesSes", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.gate.Cache = failingQuotaCache{}

		_, err := f.gate.CheckCapacity(f.ctx)

		assert.NilError(t, err)
		assert.Equal(t, 1, f.client.GetAccountCalls)
		f.logs.AssertContains(t, "ignoring quota cache read failure")
		f.logs.AssertContains(t, "failed to cache quota: cache write failed")
	})

	t.Run("ReturnsTransportErrorIfGetAccountFails", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.client.AccountError = tu.AwsServerError("SES is down")

		_, err := f.gate.CheckCapacity(f.ctx)

		assert.Assert(t, tu.ErrorIs(err, ErrTransport))
		assert.Assert(t, tu.ErrorIs(err, ops.ErrExternal))
		assert.ErrorContains(t, err, "failed to get AWS account info")
	})
}

func TestTestConnection(t *testing.T) {
	t.Run("Succeeds", func(t *testing.T) {
		f := newQuotaGateFixture()

		assert.NilError(t, f.gate.TestConnection(f.ctx))
	})

	t.Run("AlwaysQueriesSes", func(t *testing.T) {
		f := newQuotaGateFixture()

		assert.NilError(t, f.gate.TestConnection(f.ctx))
		assert.NilError(t, f.gate.TestConnection(f.ctx))

		assert.Equal(t, 2, f.client.GetAccountCalls)
	})

	t.Run("FailsIfSendingDisabled", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.client.AccountOutput.SendingEnabled = false

		err := f.gate.TestConnection(f.ctx)

		assert.Assert(t, tu.ErrorIs(err, ErrSendingDisabled))
	})

	t.Run("FailsIfQuotaExhausted", func(t *testing.T) {
		f := newQuotaGateFixture()
		f.client.SetQuota(25.0, 50000.0, 50000.0)

		err := f.gate.TestConnection(f.ctx)

		assert.Assert(t, tu.ErrorIs(err, ErrQuotaExceeded))
	})
}

func TestQuotaStateSendRate(t *testing.T) {
	assert.Equal(t, 1, (&QuotaState{MaxSendRate: 0.5}).SendRate())
	assert.Equal(t, 14, (&QuotaState{MaxSendRate: 14.0}).SendRate())
}
