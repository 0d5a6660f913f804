package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/app/event"
	"messenger/internal/app/registry"
)

func counterpartsOf(graph map[int64][]int64) CounterpartFunc {
	return func(_ context.Context, userID int64) ([]int64, error) {
		return graph[userID], nil
	}
}

func statusPayloads(t *testing.T, ds []delivery) []event.StatusPayload {
	t.Helper()
	out := make([]event.StatusPayload, 0, len(ds))
	for _, d := range ds {
		require.Equal(t, event.ChatStatusChanged, d.frame.Event)
		var p event.StatusPayload
		require.NoError(t, json.Unmarshal(d.raw, &p))
		out = append(out, p)
	}
	return out
}

func TestEmitStatus_OnlineReachesCounterpartsAndSyncsBack(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	rec := &recordingDeliverer{}
	d := NewDispatcher(Config{
		Registry:     reg,
		Deliverer:    rec,
		Counterparts: counterpartsOf(map[int64][]int64{1: {2, 3, 4, 2}}),
	})

	connect(t, reg, registry.PoolPresence, 1, registry.StatusOnline)
	connect(t, reg, registry.PoolPresence, 2, registry.StatusOnline)
	connect(t, reg, registry.PoolPresence, 3, registry.StatusInvisible)

	require.NoError(t, d.EmitStatusToCounterparts(ctx, 1, registry.StatusOnline))

	assert.Equal(t, []event.StatusPayload{{UserID: 1, Status: registry.StatusOnline}}, statusPayloads(t, rec.to(2)))
	assert.Equal(t, []event.StatusPayload{{UserID: 1, Status: registry.StatusOnline}}, statusPayloads(t, rec.to(3)))
	assert.Empty(t, rec.to(4))

	assert.ElementsMatch(t, []event.StatusPayload{
		{UserID: 2, Status: registry.StatusOnline},
		{UserID: 3, Status: registry.StatusInvisible},
	}, statusPayloads(t, rec.to(1)))
}

func TestEmitStatus_InvisibleStillSyncsBack(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	rec := &recordingDeliverer{}
	d := NewDispatcher(Config{
		Registry:     reg,
		Deliverer:    rec,
		Counterparts: counterpartsOf(map[int64][]int64{1: {2}}),
	})

	connect(t, reg, registry.PoolPresence, 1, registry.StatusInvisible)
	connect(t, reg, registry.PoolPresence, 2, registry.StatusOnline)

	require.NoError(t, d.EmitStatusToCounterparts(ctx, 1, registry.StatusInvisible))

	assert.Equal(t, []event.StatusPayload{{UserID: 1, Status: registry.StatusInvisible}}, statusPayloads(t, rec.to(2)))
	assert.Equal(t, []event.StatusPayload{{UserID: 2, Status: registry.StatusOnline}}, statusPayloads(t, rec.to(1)),
		"a connected user gets the counterpart statuses on every change")
}

func TestEmitStatus_DisconnectedUserGetsNoSync(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	rec := &recordingDeliverer{}
	d := NewDispatcher(Config{
		Registry:     reg,
		Deliverer:    rec,
		Counterparts: counterpartsOf(map[int64][]int64{1: {2}}),
	})

	connect(t, reg, registry.PoolPresence, 2, registry.StatusOnline)

	require.NoError(t, d.EmitStatusToCounterparts(ctx, 1, registry.StatusInvisible))

	assert.Len(t, rec.to(2), 1)
	assert.Empty(t, rec.to(1))
}

func TestEmitStatus_SymmetricWhenBothOnline(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	rec := &recordingDeliverer{}
	d := NewDispatcher(Config{
		Registry:     reg,
		Deliverer:    rec,
		Counterparts: counterpartsOf(map[int64][]int64{1: {2}, 2: {1}}),
	})

	connect(t, reg, registry.PoolPresence, 1, registry.StatusOnline)
	require.NoError(t, d.EmitStatusToCounterparts(ctx, 1, registry.StatusOnline))
	connect(t, reg, registry.PoolPresence, 2, registry.StatusOnline)
	require.NoError(t, d.EmitStatusToCounterparts(ctx, 2, registry.StatusOnline))

	assert.Contains(t, statusPayloads(t, rec.to(1)), event.StatusPayload{UserID: 2, Status: registry.StatusOnline})
	assert.Contains(t, statusPayloads(t, rec.to(2)), event.StatusPayload{UserID: 1, Status: registry.StatusOnline})
}

func TestEmitStatus_CounterpartFailure(t *testing.T) {
	d := NewDispatcher(Config{
		Registry:  registry.NewMemory(),
		Deliverer: &recordingDeliverer{},
		Counterparts: CounterpartFunc(func(context.Context, int64) ([]int64, error) {
			return nil, errors.New("identity down")
		}),
	})

	assert.Error(t, d.EmitStatusToCounterparts(context.Background(), 1, registry.StatusOnline))
}
