package roommgr

import (
	"sync"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// DefaultCallGCInterval and DefaultCallMaxAge match spec §4.4's
// T_callgc=1h / T_callmax=1h defaults for terminal-call garbage
// collection.
const (
	DefaultCallGCInterval = time.Hour
	DefaultCallMaxAge     = time.Hour
)

// CallManager provides O(1) call lookups that do not require the caller
// to already know which room a participant belongs to (spec §4.4) — a
// global index layered on top of the per-room records domain.Room itself
// enforces the pair invariant against. Room is authoritative for a
// participant pair within one room; CallManager is authoritative for
// "which room is this call in" and for garbage collecting old terminal
// calls across every room.
type CallManager struct {
	mu                  sync.Mutex
	roomOf              map[domain.CallID]domain.RoomID
	activeByParticipant map[domain.ParticipantID]domain.CallID
	idGen               domain.IDGenerator
	gcInterval          time.Duration
	maxAge              time.Duration
	gcDone              chan struct{}
	rooms               *RoomManager
	allowMultipleCalls  bool
}

// NewCallManager constructs a CallManager bound to rooms for resolving a
// call's Room record, and starts its background GC sweep. allowMultipleCalls
// mirrors config.CallManagerConfig.AllowMultipleCalls (spec §4.4): when
// false, StartCall rejects if either participant already has an active
// call anywhere, not just within the pair being started.
func NewCallManager(rooms *RoomManager, allowMultipleCalls bool, gcInterval, maxAge time.Duration) *CallManager {
	if gcInterval <= 0 {
		gcInterval = DefaultCallGCInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultCallMaxAge
	}
	cm := &CallManager{
		roomOf:              make(map[domain.CallID]domain.RoomID),
		activeByParticipant: make(map[domain.ParticipantID]domain.CallID),
		idGen:               domain.DefaultIDGenerator,
		gcInterval:          gcInterval,
		maxAge:              maxAge,
		gcDone:              make(chan struct{}),
		rooms:               rooms,
		allowMultipleCalls:  allowMultipleCalls,
	}
	go cm.gcLoop()
	return cm
}

// StartCall creates a new pending call between caller and target within
// room, enforcing the one-active-call-per-pair invariant via the room's
// own AddCall (spec §3 invariant a) and, when allowMultipleCalls is
// false, the per-participant invariant (spec §4.4: "start rejects if
// either participant has an active call") via activeByParticipant. The
// participant-busy check and the reservation happen under one cm.mu
// critical section so two concurrent StartCall calls for the same
// participant can't both pass the check before either reserves.
func (cm *CallManager) StartCall(room *domain.Room, caller, target domain.ParticipantID) (*domain.Call, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.allowMultipleCalls {
		if _, busy := cm.activeByParticipant[caller]; busy {
			return nil, apperror.New(apperror.CallAlreadyExists, "caller already has an active call")
		}
		if _, busy := cm.activeByParticipant[target]; busy {
			return nil, apperror.New(apperror.CallAlreadyExists, "target already has an active call")
		}
	}

	call := &domain.Call{
		CallID:    domain.CallID(cm.idGen.NewCallID()),
		CallerSid: caller,
		TargetSid: target,
		State:     domain.CallPending,
		StartTime: time.Now(),
	}
	if err := room.AddCall(call); err != nil {
		return nil, err
	}

	cm.roomOf[call.CallID] = room.Sid
	cm.activeByParticipant[caller] = call.CallID
	cm.activeByParticipant[target] = call.CallID
	return call, nil
}

// transitionCall validates the call's current state is exactly `from`,
// advances it to `to`, and releases the pair-index reservation if `to` is
// terminal.
func (cm *CallManager) transitionCall(room *domain.Room, callID domain.CallID, from, to domain.CallState) (*domain.Call, error) {
	call, ok := room.Call(callID)
	if !ok {
		return nil, apperror.New(apperror.NotFound, "call not found")
	}
	if call.State != from {
		return nil, apperror.New(apperror.InvalidCallState, "call is not in the expected state for this transition")
	}
	call.State = to
	if to.IsTerminal() {
		now := time.Now()
		call.EndTime = &now
		room.RemoveCallPairIndex(call)

		cm.mu.Lock()
		if cm.activeByParticipant[call.CallerSid] == callID {
			delete(cm.activeByParticipant, call.CallerSid)
		}
		if cm.activeByParticipant[call.TargetSid] == callID {
			delete(cm.activeByParticipant, call.TargetSid)
		}
		cm.mu.Unlock()
	}
	return call, nil
}

// AcceptCall transitions a pending call to accepted.
func (cm *CallManager) AcceptCall(room *domain.Room, callID domain.CallID) (*domain.Call, error) {
	return cm.transitionCall(room, callID, domain.CallPending, domain.CallAccepted)
}

// RejectCall transitions a pending call to rejected.
func (cm *CallManager) RejectCall(room *domain.Room, callID domain.CallID) (*domain.Call, error) {
	return cm.transitionCall(room, callID, domain.CallPending, domain.CallRejected)
}

// EndCall transitions an accepted call to ended. A pending call can also
// be ended directly (the caller hanging up before the target answers).
func (cm *CallManager) EndCall(room *domain.Room, callID domain.CallID) (*domain.Call, error) {
	call, ok := room.Call(callID)
	if !ok {
		return nil, apperror.New(apperror.NotFound, "call not found")
	}
	if call.State.IsTerminal() {
		return nil, apperror.New(apperror.InvalidCallState, "call has already ended")
	}
	return cm.transitionCall(room, callID, call.State, domain.CallEnded)
}

// GetActiveCallForParticipant resolves sid's current active call, if any,
// in O(1).
func (cm *CallManager) GetActiveCallForParticipant(sid domain.ParticipantID) (domain.CallID, domain.RoomID, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callID, ok := cm.activeByParticipant[sid]
	if !ok {
		return "", "", false
	}
	return callID, cm.roomOf[callID], true
}

// GetCallBetweenParticipants resolves the active call between an
// unordered pair, if any, in O(1) by checking whether both ends share the
// same active call id.
func (cm *CallManager) GetCallBetweenParticipants(a, b domain.ParticipantID) (domain.CallID, domain.RoomID, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ca, okA := cm.activeByParticipant[a]
	cb, okB := cm.activeByParticipant[b]
	if !okA || !okB || ca != cb {
		return "", "", false
	}
	return ca, cm.roomOf[ca], true
}

// gcLoop periodically purges terminal call records older than maxAge from
// every registered room (spec §4.4 T_callgc).
func (cm *CallManager) gcLoop() {
	ticker := time.NewTicker(cm.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cm.gcDone:
			return
		case <-ticker.C:
			cm.gcOnce()
		}
	}
}

func (cm *CallManager) gcOnce() {
	if cm.rooms == nil {
		return
	}
	cutoff := time.Now().Add(-cm.maxAge)
	for _, room := range cm.rooms.Rooms() {
		for _, call := range room.Calls() {
			if call.State.IsTerminal() && call.EndTime != nil && call.EndTime.Before(cutoff) {
				room.PurgeCall(call.CallID)
				cm.mu.Lock()
				delete(cm.roomOf, call.CallID)
				cm.mu.Unlock()
				logging.Info(nil, "garbage collected terminal call", zap.String("callId", string(call.CallID)))
			}
		}
	}
}

// Stop halts the background GC sweep.
func (cm *CallManager) Stop() {
	select {
	case <-cm.gcDone:
	default:
		close(cm.gcDone)
	}
}
