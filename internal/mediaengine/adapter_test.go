package mediaengine

import (
	"context"
	"testing"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() *Adapter {
	return NewAdapter(NewLoopbackEngineClient(), DefaultTimeouts, SweepConfig{})
}

func TestAdapter_CreateAndCloseTransportCascades(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	transport, err := a.CreateTransport(ctx, domain.RoomID("room-1"), DirectionSend, nil)
	require.NoError(t, err)

	producer, err := a.CreateProducer(ctx, transport.ID, domain.TrackKindVideo, domain.TrackSourceCamera, nil, nil)
	require.NoError(t, err)

	consumer, err := a.CreateConsumer(ctx, transport.ID, producer.ID, map[string]any{"codecs": true})
	require.NoError(t, err)

	dp, err := a.CreateDataProducer(ctx, transport.ID, nil, "chat", "sctp")
	require.NoError(t, err)

	dc, err := a.CreateDataConsumer(ctx, transport.ID, dp.ID)
	require.NoError(t, err)

	require.NoError(t, a.CloseTransport(ctx, transport.ID))

	a.producersMu.RLock()
	_, producerStillTracked := a.producers[producer.ID]
	_, reverseStillTracked := a.transportProducers[transport.ID]
	a.producersMu.RUnlock()
	assert.False(t, producerStillTracked)
	if reverseStillTracked {
		assert.Empty(t, a.transportProducers[transport.ID])
	}

	a.consumersMu.RLock()
	_, consumerStillTracked := a.consumers[consumer.ID]
	a.consumersMu.RUnlock()
	assert.False(t, consumerStillTracked)

	a.dataProducersMu.RLock()
	_, dpStillTracked := a.dataProducers[dp.ID]
	a.dataProducersMu.RUnlock()
	assert.False(t, dpStillTracked)

	a.dataConsumersMu.RLock()
	_, dcStillTracked := a.dataConsumers[dc.ID]
	a.dataConsumersMu.RUnlock()
	assert.False(t, dcStillTracked)

	a.transportsMu.RLock()
	_, transportStillTracked := a.transports[transport.ID]
	a.transportsMu.RUnlock()
	assert.False(t, transportStillTracked)
}

func TestAdapter_CloseTransportUnknownIsNoop(t *testing.T) {
	a := newTestAdapter()
	assert.NoError(t, a.CloseTransport(context.Background(), "never-existed"))
}

func TestAdapter_CloseProducerIsIdempotent(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	transport, err := a.CreateTransport(ctx, domain.RoomID("room-1"), DirectionSend, nil)
	require.NoError(t, err)
	producer, err := a.CreateProducer(ctx, transport.ID, domain.TrackKindAudio, domain.TrackSourceMicrophone, nil, nil)
	require.NoError(t, err)

	require.NoError(t, a.CloseProducer(ctx, producer.ID))
	assert.NoError(t, a.CloseProducer(ctx, producer.ID))
}

func TestAdapter_SweeperClosesStaleTransports(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	transport, err := a.CreateTransport(ctx, domain.RoomID("room-1"), DirectionSend, nil)
	require.NoError(t, err)

	a.transportsMu.Lock()
	a.transports[transport.ID].createdAt = time.Now().Add(-2 * time.Hour)
	a.transportsMu.Unlock()

	a.sweepOnce(time.Hour)

	a.transportsMu.RLock()
	_, stillTracked := a.transports[transport.ID]
	a.transportsMu.RUnlock()
	assert.False(t, stillTracked)
}

// codecRejectingEngine rejects every codec so CreateConsumer's codec gate
// can be exercised independent of the loopback's always-true stand-in.
type codecRejectingEngine struct {
	*LoopbackEngineClient
}

func (c *codecRejectingEngine) SupportsCodec(kind domain.TrackKind, rtpCapabilities map[string]any) bool {
	return false
}

func TestAdapter_CreateConsumerRejectsUnsupportedCodec(t *testing.T) {
	a := NewAdapter(&codecRejectingEngine{LoopbackEngineClient: NewLoopbackEngineClient()}, DefaultTimeouts, SweepConfig{})
	ctx := context.Background()

	transport, err := a.CreateTransport(ctx, domain.RoomID("room-1"), DirectionSend, nil)
	require.NoError(t, err)
	producer, err := a.CreateProducer(ctx, transport.ID, domain.TrackKindVideo, domain.TrackSourceCamera, nil, nil)
	require.NoError(t, err)

	_, err = a.CreateConsumer(ctx, transport.ID, producer.ID, nil)
	require.Error(t, err)
	assert.Equal(t, apperror.MediaError, apperror.KindOf(err))
}

// slowEngine blocks CreateTransport past any reasonable timeout, so the
// Adapter's deadline wrapper can be exercised.
type slowEngine struct {
	*LoopbackEngineClient
	delay time.Duration
}

func (s *slowEngine) CreateTransport(ctx context.Context, direction Direction, params map[string]any) (TransportInfo, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return TransportInfo{}, ctx.Err()
	}
	return s.LoopbackEngineClient.CreateTransport(ctx, direction, params)
}

func TestAdapter_CreateTransportTimesOutAndLeavesNoEntry(t *testing.T) {
	a := NewAdapter(&slowEngine{LoopbackEngineClient: NewLoopbackEngineClient(), delay: time.Second}, Timeouts{
		Create: 10 * time.Millisecond, Connect: 10 * time.Millisecond, Close: 10 * time.Millisecond, Stats: 10 * time.Millisecond,
	}, SweepConfig{})

	_, err := a.CreateTransport(context.Background(), domain.RoomID("room-1"), DirectionSend, nil)
	require.Error(t, err)
	assert.Equal(t, apperror.Timeout, apperror.KindOf(err))

	a.transportsMu.RLock()
	defer a.transportsMu.RUnlock()
	assert.Empty(t, a.transports)
}
