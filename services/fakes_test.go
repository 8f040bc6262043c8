package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
)

// fakeCache is an in-memory stand-in for the resilient facade. Setting down
// makes every operation answer ok=false, simulating an open breaker.
type fakeCache struct {
	mu     sync.Mutex
	kv     map[string]string
	sets   map[string]map[string]bool
	lists  map[string][]string
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
	down   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		kv:     make(map[string]string),
		sets:   make(map[string]map[string]bool),
		lists:  make(map[string][]string),
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
	}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", false
	}
	v, ok := f.kv[key]
	return v, ok
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	f.kv[key] = value
	return true
}

func (f *fakeCache) Del(_ context.Context, keys ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	for _, key := range keys {
		delete(f.kv, key)
		delete(f.sets, key)
		delete(f.lists, key)
		delete(f.hashes, key)
	}
	return true
}

func (f *fakeCache) SAdd(_ context.Context, key string, _ time.Duration, members ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	set := f.sets[key]
	if set == nil {
		set = make(map[string]bool)
		f.sets[key] = set
	}
	for _, m := range members {
		set[m] = true
	}
	return true
}

func (f *fakeCache) SRem(_ context.Context, key string, members ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return true
}

func (f *fakeCache) SMembers(_ context.Context, key string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, false
	}
	members := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		members = append(members, m)
	}
	return members, true
}

func (f *fakeCache) SIsMember(_ context.Context, key, member string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, false
	}
	return f.sets[key][member], true
}

func (f *fakeCache) LPushTrim(_ context.Context, key, value string, max int64, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	list := append([]string{value}, f.lists[key]...)
	if int64(len(list)) > max {
		list = list[:max]
	}
	f.lists[key] = list
	return true
}

func (f *fakeCache) LRange(_ context.Context, key string, start, stop int64) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, false
	}
	list := f.lists[key]
	if start >= int64(len(list)) {
		return nil, true
	}
	if stop >= int64(len(list)) || stop < 0 {
		stop = int64(len(list)) - 1
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, list[start:stop+1]...)
	return out, true
}

func (f *fakeCache) ZAdd(_ context.Context, key, member string, score float64, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	zset := f.zsets[key]
	if zset == nil {
		zset = make(map[string]float64)
		f.zsets[key] = zset
	}
	zset[member] = score
	return true
}

func (f *fakeCache) HSet(_ context.Context, key string, _ time.Duration, pairs ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false
	}
	hash := f.hashes[key]
	if hash == nil {
		hash = make(map[string]string)
		f.hashes[key] = hash
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		hash[pairs[i]] = pairs[i+1]
	}
	return true
}

func (f *fakeCache) HGetAll(_ context.Context, key string) (map[string]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, false
	}
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, true
}

// fakeStore is the durable side. failReads simulates a durable outage for
// reads; writes only happen through the applied jobs below.
type fakeStore struct {
	mu           sync.Mutex
	rooms        map[string]*models.RoomSnapshot
	bySession    map[string]*models.Room
	participants map[string][]models.Participant
	capacities   map[string]*models.AgentCapacity
	messages     map[string][]models.Message
	windows      map[string]map[string]string // agent -> room -> status
	failReads    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:        make(map[string]*models.RoomSnapshot),
		bySession:    make(map[string]*models.Room),
		participants: make(map[string][]models.Participant),
		capacities:   make(map[string]*models.AgentCapacity),
		messages:     make(map[string][]models.Message),
		windows:      make(map[string]map[string]string),
	}
}

var errStoreDown = gorm.ErrInvalidDB

func (f *fakeStore) FindRoom(_ context.Context, roomID, workspaceID string) (*models.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	snapshot, ok := f.rooms[roomID]
	if !ok || snapshot.WorkspaceID != workspaceID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *snapshot
	return &copied, nil
}

func (f *fakeStore) FindRoomBySession(_ context.Context, visitorSessionID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	room, ok := f.bySession[visitorSessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *room
	return &copied, nil
}

func (f *fakeStore) FindMessages(_ context.Context, roomID string, limit, offset int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	return f.messages[roomID], nil
}

func (f *fakeStore) FindParticipants(_ context.Context, roomID string) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	return f.participants[roomID], nil
}

func (f *fakeStore) FindAgentCapacity(_ context.Context, agentID string) (*models.AgentCapacity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	capacity, ok := f.capacities[agentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *capacity
	return &copied, nil
}

func (f *fakeStore) UpdateChatWindowStatusTx(_ context.Context, agentID, roomID, status, roomInFocus string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errStoreDown
	}
	windows := f.windows[agentID]
	if windows == nil {
		windows = make(map[string]string)
		f.windows[agentID] = windows
	}
	affected := []string{roomID}
	if status == models.WindowOpen {
		for room, st := range windows {
			if room != roomID && st == models.WindowOpen {
				windows[room] = models.WindowInBackground
				affected = append(affected, room)
			}
		}
	}
	windows[roomID] = status
	if status != models.WindowOpen && roomInFocus != "" && roomInFocus != roomID {
		for room, st := range windows {
			if room != roomInFocus && st == models.WindowOpen {
				windows[room] = models.WindowInBackground
				affected = append(affected, room)
			}
		}
		windows[roomInFocus] = models.WindowOpen
		affected = append(affected, roomInFocus)
	}
	return affected, nil
}

func (f *fakeStore) windowStatus(agentID, roomID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[agentID][roomID]
}

// fakeWriter records enqueued jobs and, when wired to a store, applies the
// mutations synchronously as if the batch had already flushed.
type fakeWriter struct {
	mu    sync.Mutex
	jobs  []recordedJob
	store *fakeStore
}

type recordedJob struct {
	Kind    queue.JobKind
	Key     string
	Payload any
}

func (f *fakeWriter) Enqueue(kind queue.JobKind, key string, payload any) {
	f.mu.Lock()
	f.jobs = append(f.jobs, recordedJob{Kind: kind, Key: key, Payload: payload})
	f.mu.Unlock()

	if f.store == nil {
		return
	}
	switch kind {
	case queue.JobRoomCreated:
		data, _ := json.Marshal(payload)
		var room models.Room
		if json.Unmarshal(data, &room) == nil {
			f.store.mu.Lock()
			f.store.bySession[room.VisitorSessionID] = &room
			f.store.rooms[room.ID] = &models.RoomSnapshot{Room: room}
			f.store.mu.Unlock()
		}
	case queue.JobParticipantAdded:
		data, _ := json.Marshal(payload)
		var participant models.Participant
		if json.Unmarshal(data, &participant) == nil {
			f.store.mu.Lock()
			f.store.participants[participant.RoomID] = append(f.store.participants[participant.RoomID], participant)
			f.store.mu.Unlock()
		}
	}
}

func (f *fakeWriter) kinds() []queue.JobKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]queue.JobKind, len(f.jobs))
	for i, j := range f.jobs {
		kinds[i] = j.Kind
	}
	return kinds
}

func (f *fakeWriter) count(kind queue.JobKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Kind == kind {
			n++
		}
	}
	return n
}

// fakeJobs records external queue publishes.
type fakeJobs struct {
	mu      sync.Mutex
	entries []publishedJob
}

type publishedJob struct {
	Queue   string
	JobType string
	Payload any
	Opts    queue.JobOptions
}

func (f *fakeJobs) Enqueue(queueName, jobType string, payload any, opts queue.JobOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, publishedJob{Queue: queueName, JobType: jobType, Payload: payload, Opts: opts})
}

func (f *fakeJobs) onQueue(name string) []publishedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedJob
	for _, e := range f.entries {
		if e.Queue == name {
			out = append(out, e)
		}
	}
	return out
}

// fakeNotifier records chat notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

// fakeBridge records fire-and-forget bridge calls.
type fakeBridge struct {
	mu        sync.Mutex
	activated []string
	messages  []string
}

func (f *fakeBridge) Activate(_, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, roomID)
}

func (f *fakeBridge) Deactivate(_, _ string) {}

func (f *fakeBridge) VisitorMessage(_, _, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
}

// fakeLimiter scripts rate-limit outcomes.
type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.calls++
	return f.allow, f.err
}
