package mediaengine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/meshcall/controlplane/internal/domain"
)

// LoopbackEngineClient is a dev-mode EngineClient that never talks to a
// real SFU process: every create operation succeeds immediately and hands
// back a fresh id, every other operation is a no-op. It mirrors
// internal/v1/auth's MockValidator — a stand-in that lets the rest of the
// control plane run and be tested without the external engine configured.
type LoopbackEngineClient struct {
	mu        sync.Mutex
	producers map[string]struct {
		kind   domain.TrackKind
		source domain.TrackSource
		paused bool
	}
	consumers map[string]struct{ paused bool }
}

// NewLoopbackEngineClient constructs a LoopbackEngineClient.
func NewLoopbackEngineClient() *LoopbackEngineClient {
	return &LoopbackEngineClient{
		producers: make(map[string]struct {
			kind   domain.TrackKind
			source domain.TrackSource
			paused bool
		}),
		consumers: make(map[string]struct{ paused bool }),
	}
}

func (l *LoopbackEngineClient) CreateTransport(ctx context.Context, direction Direction, params map[string]any) (TransportInfo, error) {
	return TransportInfo{ID: uuid.NewString(), Direction: direction, Params: params}, nil
}

func (l *LoopbackEngineClient) ConnectTransport(ctx context.Context, transportID string, dtlsParams map[string]any) error {
	return nil
}

func (l *LoopbackEngineClient) CreateProducer(ctx context.Context, transportID string, kind domain.TrackKind, source domain.TrackSource, rtpParams, appData map[string]any) (ProducerInfo, error) {
	id := uuid.NewString()
	l.mu.Lock()
	l.producers[id] = struct {
		kind   domain.TrackKind
		source domain.TrackSource
		paused bool
	}{kind: kind, source: source}
	l.mu.Unlock()
	return ProducerInfo{ID: id, Kind: kind, Source: source}, nil
}

func (l *LoopbackEngineClient) PauseProducer(ctx context.Context, producerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.producers[producerID]; ok {
		p.paused = true
		l.producers[producerID] = p
	}
	return nil
}

func (l *LoopbackEngineClient) ResumeProducer(ctx context.Context, producerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.producers[producerID]; ok {
		p.paused = false
		l.producers[producerID] = p
	}
	return nil
}

func (l *LoopbackEngineClient) CloseProducer(ctx context.Context, producerID string) error {
	l.mu.Lock()
	delete(l.producers, producerID)
	l.mu.Unlock()
	return nil
}

func (l *LoopbackEngineClient) CreateConsumer(ctx context.Context, transportID, producerID string, rtpCapabilities map[string]any) (ConsumerInfo, error) {
	l.mu.Lock()
	p := l.producers[producerID]
	id := uuid.NewString()
	l.consumers[id] = struct{ paused bool }{}
	l.mu.Unlock()
	return ConsumerInfo{ID: id, ProducerID: producerID, Kind: p.kind, RTPParameters: rtpCapabilities}, nil
}

func (l *LoopbackEngineClient) PauseConsumer(ctx context.Context, consumerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.consumers[consumerID]; ok {
		l.consumers[consumerID] = struct{ paused bool }{paused: true}
	}
	return nil
}

func (l *LoopbackEngineClient) ResumeConsumer(ctx context.Context, consumerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.consumers[consumerID]; ok {
		l.consumers[consumerID] = struct{ paused bool }{paused: false}
	}
	return nil
}

func (l *LoopbackEngineClient) CloseConsumer(ctx context.Context, consumerID string) error {
	l.mu.Lock()
	delete(l.consumers, consumerID)
	l.mu.Unlock()
	return nil
}

func (l *LoopbackEngineClient) CreateDataProducer(ctx context.Context, transportID string, streamParams map[string]any, label, protocol string) (DataProducerInfo, error) {
	return DataProducerInfo{ID: uuid.NewString(), Label: label, Protocol: protocol}, nil
}

func (l *LoopbackEngineClient) CreateDataConsumer(ctx context.Context, transportID, dataProducerID string) (DataConsumerInfo, error) {
	return DataConsumerInfo{ID: uuid.NewString(), DataProducerID: dataProducerID}, nil
}

func (l *LoopbackEngineClient) CloseDataProducer(ctx context.Context, dataProducerID string) error {
	return nil
}

func (l *LoopbackEngineClient) CloseDataConsumer(ctx context.Context, dataConsumerID string) error {
	return nil
}

func (l *LoopbackEngineClient) CloseTransport(ctx context.Context, transportID string) error {
	return nil
}

func (l *LoopbackEngineClient) GetRTPCapabilities(ctx context.Context) (map[string]any, error) {
	return map[string]any{"codecs": []string{"opus", "VP8", "H264"}}, nil
}

func (l *LoopbackEngineClient) GetProducerStats(ctx context.Context, producerID string) (map[string]any, error) {
	return map[string]any{"bitrate": 0}, nil
}

func (l *LoopbackEngineClient) GetConsumerStats(ctx context.Context, consumerID string) (map[string]any, error) {
	return map[string]any{"bitrate": 0}, nil
}

// SupportsCodec always reports support — the loopback has no real codec
// negotiation to gate.
func (l *LoopbackEngineClient) SupportsCodec(kind domain.TrackKind, rtpCapabilities map[string]any) bool {
	return true
}

// DataChannelReady always reports true — no real data channel exists to
// be unready.
func (l *LoopbackEngineClient) DataChannelReady(transportID string) bool {
	return true
}
