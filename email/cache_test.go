//go:build small_tests || all_tests

package email

import (
	"context"
	"testing"
	"time"

	"github.com/mabumusa1/ses-plugin/testdata"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func TestMemoryQuotaCache(t *testing.T) {
	ctx := context.Background()
	now := testdata.TestTimestamp
	cache := &MemoryQuotaCache{Now: func() time.Time { return now }}

	state, err := cache.GetQuota(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Nil(state))

	saved := &QuotaState{MaxSendRate: 14, Remaining: 100}
	assert.NilError(t, cache.SetQuota(ctx, saved, time.Minute))
	saved.Remaining = 0

	state, err = cache.GetQuota(ctx)
	assert.NilError(t, err)
	assert.Equal(t, int64(100), state.Remaining)

	now = now.Add(time.Minute)
	state, err = cache.GetQuota(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Nil(state))
}

func TestMemoryTemplateRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryTemplateRegistry()

	added, err := registry.Register(ctx, "b")
	assert.NilError(t, err)
	assert.Assert(t, added)

	added, err = registry.Register(ctx, "b")
	assert.NilError(t, err)
	assert.Assert(t, !added)

	_, err = registry.Register(ctx, "a")
	assert.NilError(t, err)

	names, err := registry.Registered(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"a", "b"}, names)

	assert.NilError(t, registry.Unregister(ctx, "b"))
	ok, err := registry.IsRegistered(ctx, "b")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}
