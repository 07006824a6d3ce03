package tracker

import (
	"context"
	"errors"
	"sync"
)

var errBackend = errors.New("backend unavailable")

type fakeIP struct {
	ip  string
	err error
}

func (f *fakeIP) ResolveIP(context.Context) (string, error) {
	return f.ip, f.err
}

type fixedGenerator string

func (g fixedGenerator) Generate(DeviceContext) string { return string(g) }

type panicGenerator struct{}

func (panicGenerator) Generate(DeviceContext) string { panic("canvas unavailable") }

type fakeStore struct {
	mu           sync.Mutex
	fingerprints map[string]DeviceFingerprint
	upserts      []DeviceFingerprint
	sessions     []UserSession
	upsertErr    error
	insertErr    error
	upsertCalls  int
	onUpsert     func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{fingerprints: make(map[string]DeviceFingerprint)}
}

func (s *fakeStore) UpsertDeviceFingerprint(_ context.Context, fp DeviceFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.onUpsert != nil {
		s.onUpsert()
	}
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, fp)
	s.fingerprints[fp.FingerprintHash] = fp
	return nil
}

func (s *fakeStore) InsertUserSession(_ context.Context, session UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *fakeStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls + len(s.sessions)
}

type fakeRisk struct {
	mu          sync.Mutex
	limits      []UsageLimits
	limitsErr   error
	limitCalls  int
	duplicate   bool
	dupErr      error
	dupCalls    int
	lastDupArgs [3]string
	failFirst   int
}

func (r *fakeRisk) GetAdjustedUsageLimits(_ context.Context, _ string) ([]UsageLimits, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limitCalls++
	if r.failFirst > 0 {
		r.failFirst--
		return nil, errBackend
	}
	return r.limits, r.limitsErr
}

func (r *fakeRisk) DetectDuplicateAccount(_ context.Context, email, ip, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dupCalls++
	r.lastDupArgs = [3]string{email, ip, hash}
	return r.duplicate, r.dupErr
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []Notification
	repeated []bool
}

func (n *fakeNotifier) Notify(ctx context.Context, msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	n.repeated = append(n.repeated, GateRepeated(ctx))
}

type recordedEvent struct {
	Event  string
	Fields map[string]any
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: event, Fields: fields})
}

func (r *fakeRecorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Event == event {
			return true
		}
	}
	return false
}

type harness struct {
	store    *fakeStore
	risk     *fakeRisk
	ip       *fakeIP
	notifier *fakeNotifier
	recorder *fakeRecorder
}

func newHarness() *harness {
	return &harness{
		store:    newFakeStore(),
		risk:     &fakeRisk{},
		ip:       &fakeIP{ip: "1.2.3.4"},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
}

func (h *harness) collector(gen FingerprintGenerator, opts ...Option) *Collector {
	opts = append([]Option{WithRecorder(h.recorder)}, opts...)
	return NewCollector(gen, h.ip, h.store, h.risk, h.notifier, opts...)
}
