// Package roommgr implements RoomManager and CallManager (components F
// and G, spec §4.4): the application-service layer that owns the room
// registry, the global participant/identity indices, and cross-room call
// routing, grounded on transport.Hub registry-plus-
// grace-period-timer idiom (backend/go/internal/v1/transport/hub.go).
package roommgr

import (
	"sync"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// DefaultCleanupGracePeriod mirrors Hub.cleanupGracePeriod:
// an empty room is not deleted immediately, giving a reconnecting
// participant a short window to rejoin before state is torn down.
const DefaultCleanupGracePeriod = 5 * time.Second

// RoomManager owns the room registry and the global sid/identity indices
// that let the signaling layer resolve a participant without already
// knowing which room it belongs to.
type RoomManager struct {
	mu                  sync.Mutex
	rooms               map[domain.RoomID]*domain.Room
	roomsByName         map[string]domain.RoomID
	pendingCleanups     map[domain.RoomID]*time.Timer
	participantsBySid   map[domain.ParticipantID]domain.RoomID
	cleanupGracePeriod  time.Duration
	maxRooms            int
	idGen               domain.IDGenerator
	onRoomRemoved       func(*domain.Room)
}

// RoomManagerOption configures optional RoomManager behavior.
type RoomManagerOption func(*RoomManager)

// WithMaxRooms caps the number of simultaneously active rooms; 0 (the
// default) means unbounded.
func WithMaxRooms(n int) RoomManagerOption {
	return func(m *RoomManager) { m.maxRooms = n }
}

// WithCleanupGracePeriod overrides DefaultCleanupGracePeriod.
func WithCleanupGracePeriod(d time.Duration) RoomManagerOption {
	return func(m *RoomManager) { m.cleanupGracePeriod = d }
}

// WithIDGenerator overrides domain.DefaultIDGenerator, primarily for tests.
func WithIDGenerator(g domain.IDGenerator) RoomManagerOption {
	return func(m *RoomManager) { m.idGen = g }
}

// WithOnRoomRemoved registers a callback invoked after a room is deleted
// from the registry (cascading adapter/call cleanup is the caller's job —
// RoomManager only owns the registry, per spec §9's cyclic-ownership
// break).
func WithOnRoomRemoved(fn func(*domain.Room)) RoomManagerOption {
	return func(m *RoomManager) { m.onRoomRemoved = fn }
}

// NewRoomManager constructs an empty RoomManager.
func NewRoomManager(opts ...RoomManagerOption) *RoomManager {
	m := &RoomManager{
		rooms:              make(map[domain.RoomID]*domain.Room),
		roomsByName:        make(map[string]domain.RoomID),
		pendingCleanups:    make(map[domain.RoomID]*time.Timer),
		participantsBySid:  make(map[domain.ParticipantID]domain.RoomID),
		cleanupGracePeriod: DefaultCleanupGracePeriod,
		idGen:              domain.DefaultIDGenerator,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom creates and registers a new room. Per spec §9's Open
// Question decision, rooms are otherwise created lazily by JoinRoom —
// this is exposed for callers (e.g. an admin API) that need an empty
// room up front.
func (m *RoomManager) CreateRoom(name string, metadata map[string]string, maxParticipants *int) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.roomsByName[name]; exists {
		return nil, apperror.New(apperror.InvalidRequest, "room name already in use")
	}
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		return nil, apperror.New(apperror.RoomFull, "server room capacity reached")
	}

	r := domain.NewRoom(domain.RoomID(m.idGen.NewRoomID()), name, metadata, maxParticipants)
	m.rooms[r.Sid] = r
	m.roomsByName[name] = r.Sid
	return r, nil
}

// GetOrCreateRoomByName returns the room with the given name, creating it
// if absent — the lazy-creation path joinRoom uses (spec §9).
func (m *RoomManager) GetOrCreateRoomByName(name string, metadata map[string]string, maxParticipants *int) (*domain.Room, error) {
	m.mu.Lock()

	if sid, ok := m.roomsByName[name]; ok {
		r := m.rooms[sid]
		m.cancelPendingCleanupLocked(sid)
		m.mu.Unlock()
		return r, nil
	}

	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		m.mu.Unlock()
		return nil, apperror.New(apperror.RoomFull, "server room capacity reached")
	}

	r := domain.NewRoom(domain.RoomID(m.idGen.NewRoomID()), name, metadata, maxParticipants)
	m.rooms[r.Sid] = r
	m.roomsByName[name] = r.Sid
	m.mu.Unlock()

	logging.Info(nil, "created room", zap.String("roomSid", string(r.Sid)), zap.String("name", name))
	return r, nil
}

// GetRoom looks up a room by sid.
func (m *RoomManager) GetRoom(sid domain.RoomID) (*domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[sid]
	return r, ok
}

// GetRoomByName looks up a room by its unique name.
func (m *RoomManager) GetRoomByName(name string) (*domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.roomsByName[name]
	if !ok {
		return nil, false
	}
	return m.rooms[sid], true
}

// TrackParticipant registers sid as a member of roomSid in the global
// index, so GetParticipantRoom can resolve it without the caller
// supplying a room.
func (m *RoomManager) TrackParticipant(sid domain.ParticipantID, roomSid domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participantsBySid[sid] = roomSid
}

// UntrackParticipant removes sid from the global index.
func (m *RoomManager) UntrackParticipant(sid domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participantsBySid, sid)
}

// GetParticipantRoom resolves which room a participant sid currently
// belongs to, in O(1), without the caller needing to already know.
func (m *RoomManager) GetParticipantRoom(sid domain.ParticipantID) (*domain.Room, bool) {
	m.mu.Lock()
	roomSid, ok := m.participantsBySid[sid]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.GetRoom(roomSid)
}

// ScheduleCloseIfEmpty arms a grace-period timer that removes the room
// from the registry if it is still empty once the timer fires — mirrors
// Hub.removeRoom, narrowed from "empty or hostless" to "empty": whether
// the room still has a host is not checked.
func (m *RoomManager) ScheduleCloseIfEmpty(sid domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingCleanupLocked(sid)

	timer := time.AfterFunc(m.cleanupGracePeriod, func() {
		m.mu.Lock()
		r, ok := m.rooms[sid]
		if !ok || r.NumParticipants() > 0 {
			delete(m.pendingCleanups, sid)
			m.mu.Unlock()
			return
		}
		r.Close()
		delete(m.rooms, sid)
		delete(m.roomsByName, r.Name)
		delete(m.pendingCleanups, sid)
		m.mu.Unlock()

		logging.Info(nil, "removed empty room after grace period", zap.String("roomSid", string(sid)))
		if m.onRoomRemoved != nil {
			m.onRoomRemoved(r)
		}
	})
	m.pendingCleanups[sid] = timer
}

func (m *RoomManager) cancelPendingCleanupLocked(sid domain.RoomID) {
	if t, ok := m.pendingCleanups[sid]; ok {
		t.Stop()
		delete(m.pendingCleanups, sid)
	}
}

// CloseRoom immediately removes a room from the registry, bypassing the
// grace period — used for explicit admin teardown.
func (m *RoomManager) CloseRoom(sid domain.RoomID) {
	m.mu.Lock()
	m.cancelPendingCleanupLocked(sid)
	r, ok := m.rooms[sid]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.Close()
	delete(m.rooms, sid)
	delete(m.roomsByName, r.Name)
	m.mu.Unlock()

	if m.onRoomRemoved != nil {
		m.onRoomRemoved(r)
	}
}

// CloseAll tears down every registered room, for graceful process
// shutdown (spec §6 process exit contract).
func (m *RoomManager) CloseAll() {
	m.mu.Lock()
	rooms := make([]*domain.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	for _, t := range m.pendingCleanups {
		t.Stop()
	}
	m.rooms = make(map[domain.RoomID]*domain.Room)
	m.roomsByName = make(map[string]domain.RoomID)
	m.pendingCleanups = make(map[domain.RoomID]*time.Timer)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Close()
		if m.onRoomRemoved != nil {
			m.onRoomRemoved(r)
		}
	}
}

// Rooms returns a snapshot slice of every active room.
func (m *RoomManager) Rooms() []*domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}
