// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu            sync.Mutex
	conversations map[ProviderID]Conversation
	persons       map[ProviderID]Person
	connections   map[uuid.UUID]*connectionRecord

	// failWith makes every call return this error when set.
	failWith error
}

type connectionRecord struct {
	ID        uuid.UUID
	Token     string
	Left      ProviderID
	Right     *ProviderID
	CreatedAt time.Time
	Direction Direction
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[ProviderID]Conversation),
		persons:       make(map[ProviderID]Person),
		connections:   make(map[uuid.UUID]*connectionRecord),
	}
}

func (s *memStore) resolve(rec *connectionRecord) *Connection {
	left := s.conversations[rec.Left]
	conn := &Connection{
		ID:        rec.ID,
		Token:     rec.Token,
		Left:      &left,
		CreatedAt: rec.CreatedAt,
		Direction: rec.Direction,
	}
	if rec.Right != nil {
		right := s.conversations[*rec.Right]
		conn.Right = &right
	}
	return conn
}

func (s *memStore) FindConversation(_ context.Context, id ProviderID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (s *memStore) InsertConversation(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *memStore) UpdateConversationTitle(_ context.Context, id ProviderID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Title = title
	s.conversations[id] = conv
	return nil
}

func (s *memStore) FindPerson(_ context.Context, id ProviderID) (*Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) SavePerson(_ context.Context, person *Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[person.ID] = *person
	return nil
}

func (s *memStore) DeletePerson(_ context.Context, id ProviderID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.persons[id]
	delete(s.persons, id)
	return ok, nil
}

func (s *memStore) InsertConnection(_ context.Context, conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	rec := &connectionRecord{
		ID:        conn.ID,
		Token:     conn.Token,
		Left:      conn.Left.ID,
		CreatedAt: conn.CreatedAt,
		Direction: conn.Direction,
	}
	if conn.Right != nil {
		right := conn.Right.ID
		rec.Right = &right
	}
	s.connections[conn.ID] = rec
	return nil
}

func (s *memStore) FindConnection(_ context.Context, id uuid.UUID) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.connections[id]
	if !ok {
		return nil, nil
	}
	return s.resolve(rec), nil
}

func (s *memStore) FindConnectionByToken(_ context.Context, token string) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.connections {
		if rec.Token == token {
			return s.resolve(rec), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindConnectionsFor(_ context.Context, conv ProviderID) ([]*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*Connection
	for _, rec := range s.connections {
		if rec.Left == conv || (rec.Right != nil && *rec.Right == conv) {
			out = append(out, s.resolve(rec))
		}
	}
	return out, nil
}

func (s *memStore) findCompletedBetween(a, b ProviderID) *connectionRecord {
	for _, rec := range s.connections {
		if rec.Right == nil {
			continue
		}
		if (rec.Left == a && *rec.Right == b) || (rec.Left == b && *rec.Right == a) {
			return rec
		}
	}
	return nil
}

func (s *memStore) FindCompletedBetween(_ context.Context, a, b ProviderID) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.findCompletedBetween(a, b); rec != nil {
		return s.resolve(rec), nil
	}
	return nil, nil
}

func (s *memStore) CompletePairing(_ context.Context, id uuid.UUID, right ProviderID) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Right != nil {
		return nil, ErrAlreadyCompleted
	}
	if s.findCompletedBetween(rec.Left, right) != nil {
		return nil, ErrDuplicatePairing
	}
	rec.Right = &right
	rec.Direction = DirectionTwoWay
	return s.resolve(rec), nil
}

func (s *memStore) SetDirection(_ context.Context, id uuid.UUID, dir Direction) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Right == nil {
		return nil, ErrPending
	}
	rec.Direction = dir
	return s.resolve(rec), nil
}

func (s *memStore) DeleteConnection(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return ErrNotFound
	}
	delete(s.connections, id)
	return nil
}

func (s *memStore) PurgeExpiredPending(_ context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, rec := range s.connections {
		if rec.Right == nil && rec.CreatedAt.Before(createdBefore) {
			delete(s.connections, id)
			purged++
		}
	}
	return purged, nil
}

func (s *memStore) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// sentMessage records one outbound send.
type sentMessage struct {
	To   ProviderID
	Text string
}

// fakeProvider captures sends for test assertions.
type fakeProvider struct {
	name string

	mu   sync.Mutex
	sent []sentMessage
	// failFor makes sends to these native IDs fail.
	failFor map[string]bool
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, failFor: make(map[string]bool)}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(_ context.Context, conversation ProviderID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[conversation.Native] {
		return errors.New("fake send failure")
	}
	p.sent = append(p.sent, sentMessage{To: conversation, Text: text})
	return nil
}

func (p *fakeProvider) Sent() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]sentMessage, len(p.sent))
	copy(cp, p.sent)
	return cp
}

// SentTo returns the texts sent to one conversation, in order.
func (p *fakeProvider) SentTo(native string) []string {
	var out []string
	for _, m := range p.Sent() {
		if m.To.Native == native {
			out = append(out, m.Text)
		}
	}
	return out
}

// LastTo returns the last text sent to one conversation, or "".
func (p *fakeProvider) LastTo(native string) string {
	texts := p.SentTo(native)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (p *fakeProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

// testEnv bundles an orchestrator with its fakes. The clock is frozen
// until advanced.
type testEnv struct {
	o        *Orchestrator
	store    *memStore
	telegram *fakeProvider
	matrix   *fakeProvider
	clock    time.Time
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	env := &testEnv{
		store:    newMemStore(),
		telegram: newFakeProvider("telegram"),
		matrix:   newFakeProvider("matrix"),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	registry := NewRegistry()
	if err := registry.Register(env.telegram); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(env.matrix); err != nil {
		t.Fatal(err)
	}
	env.o = New(env.store, registry, cfg, zerolog.Nop())
	env.o.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

// command handles a command synchronously as an admin of the given chat.
func (e *testEnv) command(conv ProviderID, body string) {
	e.o.Handle(context.Background(), Event{
		Kind:         EventCommand,
		Sender:       Sender{ID: NewProviderID(conv.Provider, "user-"+conv.Native), DisplayName: "Tester", IsAdmin: true},
		Conversation: Conversation{ID: conv, Title: "Chat " + conv.Native},
		Body:         body,
	})
}

// message routes a plain message and waits for forwards to finish.
func (e *testEnv) message(conv ProviderID, sender, body string) {
	e.o.Handle(context.Background(), Event{
		Kind:         EventMessage,
		Sender:       Sender{ID: NewProviderID(conv.Provider, sender), DisplayName: sender},
		Conversation: Conversation{ID: conv, Title: "Chat " + conv.Native},
		Body:         body,
	})
	e.o.forwards.Wait()
}

func (e *testEnv) provider(name string) *fakeProvider {
	if name == "matrix" {
		return e.matrix
	}
	return e.telegram
}

// issueToken runs /token in conv and returns the /connect command it produced.
func (e *testEnv) issueToken(t *testing.T, conv ProviderID) string {
	t.Helper()
	e.command(conv, "/token")
	last := e.provider(conv.Provider).LastTo(conv.Native)
	if !strings.HasPrefix(last, "/connect "+TokenMarker) {
		t.Fatalf("expected /connect command, got %q", last)
	}
	return last
}

// pair connects two conversations with a fresh token.
func (e *testEnv) pair(t *testing.T, left, right ProviderID) *Connection {
	t.Helper()
	e.command(right, e.issueToken(t, left))
	conns, _ := e.store.FindConnectionsFor(context.Background(), left)
	for _, c := range conns {
		if c.IsRight(right) {
			return c
		}
	}
	t.Fatalf("pairing %s with %s did not complete", left, right)
	return nil
}

func sortedNatives(msgs []sentMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.To.Native)
	}
	sort.Strings(out)
	return out
}
