// Package mediaengine implements the media-engine port and adapter (spec
// §4.2, components B and C): the narrow abstraction through which the
// control plane creates/connects/consumes transports, producers,
// consumers, and data producers/consumers against an external SFU
// process, tracking ownership so that closing one resource cascades
// correctly.
package mediaengine

import (
	"context"
	"time"

	"github.com/meshcall/controlplane/internal/domain"
)

// Direction is a transport's data direction.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// TransportInfo is returned from CreateTransport; Params carries whatever
// ICE/DTLS parameters the concrete engine implementation needs the client
// to see (opaque here — the engine is an external collaborator per spec
// §1, only the operations it exposes are in scope).
type TransportInfo struct {
	ID        string
	Direction Direction
	Params    map[string]any
}

// ProducerInfo is returned from CreateProducer.
type ProducerInfo struct {
	ID     string
	Kind   domain.TrackKind
	Source domain.TrackSource
}

// ConsumerInfo is returned from CreateConsumer.
type ConsumerInfo struct {
	ID             string
	ProducerID     string
	Kind           domain.TrackKind
	RTPParameters  map[string]any
}

// DataProducerInfo is returned from CreateDataProducer.
type DataProducerInfo struct {
	ID       string
	Label    string
	Protocol string
}

// DataConsumerInfo is returned from CreateDataConsumer.
type DataConsumerInfo struct {
	ID             string
	DataProducerID string
	Label          string
	Protocol       string
}

// Port is the abstract interface the core invokes (component B). All
// close operations are idempotent on repeated close.
type Port interface {
	CreateTransport(ctx context.Context, roomSid domain.RoomID, direction Direction, params map[string]any) (TransportInfo, error)
	ConnectTransport(ctx context.Context, transportID string, dtlsParams map[string]any) error

	CreateProducer(ctx context.Context, transportID string, kind domain.TrackKind, source domain.TrackSource, rtpParams map[string]any, appData map[string]any) (ProducerInfo, error)
	PauseProducer(ctx context.Context, producerID string) error
	ResumeProducer(ctx context.Context, producerID string) error
	CloseProducer(ctx context.Context, producerID string) error

	CreateConsumer(ctx context.Context, transportID, producerID string, rtpCapabilities map[string]any) (ConsumerInfo, error)
	PauseConsumer(ctx context.Context, consumerID string) error
	ResumeConsumer(ctx context.Context, consumerID string) error
	CloseConsumer(ctx context.Context, consumerID string) error

	CreateDataProducer(ctx context.Context, transportID string, streamParams map[string]any, label, protocol string) (DataProducerInfo, error)
	CreateDataConsumer(ctx context.Context, transportID, dataProducerID string) (DataConsumerInfo, error)
	CloseDataProducer(ctx context.Context, dataProducerID string) error
	CloseDataConsumer(ctx context.Context, dataConsumerID string) error

	CloseTransport(ctx context.Context, transportID string) error
	Close(ctx context.Context) error

	GetRTPCapabilities(ctx context.Context) (map[string]any, error)
	GetProducerStats(ctx context.Context, producerID string) (map[string]any, error)
	GetConsumerStats(ctx context.Context, consumerID string) (map[string]any, error)
}

// EngineClient is the thin, external-facing client the Adapter wraps with
// bookkeeping, timeouts, and circuit breaking. A production implementation
// speaks to the concrete SFU process; LoopbackEngineClient is a dev-mode
// stand-in used when no such process is configured, mirroring the way
// internal/v1/auth ships a MockValidator for development.
type EngineClient interface {
	CreateTransport(ctx context.Context, direction Direction, params map[string]any) (TransportInfo, error)
	ConnectTransport(ctx context.Context, transportID string, dtlsParams map[string]any) error
	CreateProducer(ctx context.Context, transportID string, kind domain.TrackKind, source domain.TrackSource, rtpParams, appData map[string]any) (ProducerInfo, error)
	PauseProducer(ctx context.Context, producerID string) error
	ResumeProducer(ctx context.Context, producerID string) error
	CloseProducer(ctx context.Context, producerID string) error
	CreateConsumer(ctx context.Context, transportID, producerID string, rtpCapabilities map[string]any) (ConsumerInfo, error)
	PauseConsumer(ctx context.Context, consumerID string) error
	ResumeConsumer(ctx context.Context, consumerID string) error
	CloseConsumer(ctx context.Context, consumerID string) error
	CreateDataProducer(ctx context.Context, transportID string, streamParams map[string]any, label, protocol string) (DataProducerInfo, error)
	CreateDataConsumer(ctx context.Context, transportID, dataProducerID string) (DataConsumerInfo, error)
	CloseDataProducer(ctx context.Context, dataProducerID string) error
	CloseDataConsumer(ctx context.Context, dataConsumerID string) error
	CloseTransport(ctx context.Context, transportID string) error
	GetRTPCapabilities(ctx context.Context) (map[string]any, error)
	GetProducerStats(ctx context.Context, producerID string) (map[string]any, error)
	GetConsumerStats(ctx context.Context, consumerID string) (map[string]any, error)
	// SupportsCodec consults the router's capability check (spec §4.2
	// "codec gate"); CreateConsumer fails fast with mediaError when false.
	SupportsCodec(kind domain.TrackKind, rtpCapabilities map[string]any) bool
	// DataChannelReady reports whether transportID currently has a usable
	// data channel; the sendData handler falls back to the signaling
	// relay when it does not (spec §9 data-channel fallback decision).
	DataChannelReady(transportID string) bool
}

// Timeouts configures the per-operation deadlines the Adapter enforces
// (spec §4.2 "every outbound call is bounded by an operation-specific
// timeout").
type Timeouts struct {
	Create  time.Duration
	Connect time.Duration
	Close   time.Duration
	Stats   time.Duration
}

// DefaultTimeouts matches spec §4.2's T_close default of 10s, with the
// create and connect categories held to the same bound and stats reads
// to a shorter 5s.
var DefaultTimeouts = Timeouts{
	Create:  10 * time.Second,
	Connect: 10 * time.Second,
	Close:   10 * time.Second,
	Stats:   5 * time.Second,
}

// SweepConfig configures the orphan sweeper (spec §4.2).
type SweepConfig struct {
	Interval time.Duration // T_sweep, default 5 min
	MaxAge   time.Duration // T_maxAge, default 1h
}

// DefaultSweepConfig matches spec §4.2's stated defaults.
var DefaultSweepConfig = SweepConfig{
	Interval: 5 * time.Minute,
	MaxAge:   time.Hour,
}
