package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexus-crm/internal/model"
	"github.com/mmeshcher/nexus-crm/internal/repository"
)

type stubLocal struct {
	snap    repository.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func (s *stubLocal) Load() (repository.Snapshot, error) {
	return s.snap, s.loadErr
}

func (s *stubLocal) Save(snap repository.Snapshot) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snap = snap
	return nil
}

type stubRemote struct {
	clients    []model.Client
	categories []model.Category
	listErr    error

	upserted []model.Client
	deleted  []string
}

func (s *stubRemote) Close() error { return nil }

func (s *stubRemote) ListClients(ctx context.Context) ([]model.Client, error) {
	return s.clients, s.listErr
}

func (s *stubRemote) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.categories, s.listErr
}

func (s *stubRemote) UpsertClient(ctx context.Context, c model.Client) error {
	s.upserted = append(s.upserted, c)
	return nil
}

func (s *stubRemote) DeleteClient(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRemote) AddCategory(ctx context.Context, c model.Category) error { return nil }

func (s *stubRemote) DeleteCategory(ctx context.Context, id string) error { return nil }

type dispatchCall struct {
	url       string
	clientID  string
	eventType model.EventType
}

type stubDispatcher struct {
	mu     sync.Mutex
	calls  []dispatchCall
	errFor map[string]error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, targetURL string, client model.Client, eventType model.EventType) error {
	s.mu.Lock()
	s.calls = append(s.calls, dispatchCall{url: targetURL, clientID: client.ID, eventType: eventType})
	s.mu.Unlock()

	if err, ok := s.errFor[client.ID]; ok {
		return err
	}
	return nil
}

func (s *stubDispatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubInsight struct {
	configured bool
	analysis   *model.AIAnalysis
	analyzeErr error
	text       string
	messageErr error
}

func (s *stubInsight) Configured() bool { return s.configured }

func (s *stubInsight) Analyze(ctx context.Context, client model.Client) (*model.AIAnalysis, error) {
	return s.analysis, s.analyzeErr
}

func (s *stubInsight) Message(ctx context.Context, client model.Client) (string, error) {
	return s.text, s.messageErr
}

func ptrFloat(v float64) *float64 {
	return &v
}

func newTestService(local LocalStore, remote RemoteRepository, dispatcher Dispatcher, insight Insight) *Service {
	svc := NewService(local, remote, dispatcher, insight, zap.NewNop())
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

func TestLoad_RemoteFailureFallsBackToLocal(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients:    []model.Client{{ID: "local-1", Name: "Local Co"}},
		WebhookURL: "https://hooks.example.com/due",
	}}
	remote := &stubRemote{listErr: errors.New("connection refused")}

	svc := newTestService(local, remote, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	clients := svc.ListClients()
	if len(clients) != 1 || clients[0].ID != "local-1" {
		t.Fatalf("expected local snapshot to survive remote failure, got %+v", clients)
	}
	if svc.WebhookURL() != "https://hooks.example.com/due" {
		t.Fatalf("webhook URL lost on fallback: %q", svc.WebhookURL())
	}

	// После отката мутации не должны зеркалироваться в удалённое хранилище.
	if _, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "New", Phone: "1", Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("UpsertClient error: %v", err)
	}
	if len(remote.upserted) != 0 {
		t.Fatalf("mutation mirrored to failed remote: %+v", remote.upserted)
	}
}

func TestLoad_RemoteDictatesContent(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients: []model.Client{{ID: "stale", Name: "Stale"}},
	}}
	remote := &stubRemote{clients: []model.Client{
		{ID: "r-1", Name: "Alpha"},
		{ID: "r-2", Name: "Beta"},
	}}

	svc := newTestService(local, remote, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	clients := svc.ListClients()
	if len(clients) != 2 || clients[0].ID != "r-1" || clients[1].ID != "r-2" {
		t.Fatalf("expected remote list to win, got %+v", clients)
	}

	// Успешная загрузка из удалённого хранилища включает зеркалирование.
	if _, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "New", Phone: "1", Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("UpsertClient error: %v", err)
	}
	if len(remote.upserted) != 1 {
		t.Fatalf("expected mirror upsert, got %d", len(remote.upserted))
	}
}

func TestLoad_SeedsDefaultWhenEmpty(t *testing.T) {
	local := &stubLocal{}

	svc := newTestService(local, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	clients := svc.ListClients()
	if len(clients) != 1 {
		t.Fatalf("expected one seeded client, got %d", len(clients))
	}
	if clients[0].Name == "" || clients[0].Status != model.StatusActive {
		t.Fatalf("seeded client looks wrong: %+v", clients[0])
	}
	if local.saves == 0 {
		t.Fatalf("seeded state must be persisted")
	}
}

func TestUpsertClient_CreateGeneratesUniqueIDsAndPrepends(t *testing.T) {
	local := &stubLocal{}
	svc := newTestService(local, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	first, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "First", Phone: "1", Email: "f@x.io"}, "")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "Second", Phone: "2", Email: "s@x.io"}, "")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if first.ID == second.ID {
		t.Fatalf("ids must be unique, both %q", first.ID)
	}

	clients := svc.ListClients()
	seen := make(map[string]bool)
	for _, c := range clients {
		if seen[c.ID] {
			t.Fatalf("duplicate id %q in store", c.ID)
		}
		seen[c.ID] = true
	}
	if clients[0].ID != second.ID {
		t.Fatalf("new client must be prepended, got head %q", clients[0].ID)
	}
}

func TestUpsertClient_ExistingPreservesUnsetFields(t *testing.T) {
	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	created, err := svc.UpsertClient(context.Background(), model.ClientForm{
		Name:   "Acme Corp",
		Phone:  "+1 555 0100",
		Email:  "billing@acme.example",
		Value:  ptrFloat(1200),
		Date:   "2024-03-10",
		Status: model.StatusOverdue,
		Notes:  "renewal pending",
	}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpsertClient(context.Background(), model.ClientForm{
		Status: model.StatusActive,
	}, created.ID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.ID != created.ID {
		t.Fatalf("id changed on update: %q -> %q", created.ID, updated.ID)
	}
	if updated.Status != model.StatusActive {
		t.Fatalf("status not updated: %s", updated.Status)
	}
	if updated.Name != "Acme Corp" || updated.Phone != "+1 555 0100" || updated.Email != "billing@acme.example" {
		t.Fatalf("contact fields lost on partial update: %+v", updated)
	}
	if updated.Value != 1200 || updated.Date != "2024-03-10" || updated.Notes != "renewal pending" {
		t.Fatalf("value/date/notes lost on partial update: %+v", updated)
	}
}

func TestUpsertClient_UnknownIDReturnsNotFound(t *testing.T) {
	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	_, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "X"}, "missing")
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestDeleteClient_Idempotent(t *testing.T) {
	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	created, err := svc.UpsertClient(context.Background(), model.ClientForm{Name: "X", Phone: "1", Email: "x@y.z"}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.DeleteClient(context.Background(), created.ID)
	svc.DeleteClient(context.Background(), created.ID) // повторное удаление — no-op

	for _, c := range svc.ListClients() {
		if c.ID == created.ID {
			t.Fatalf("client %q still present after delete", created.ID)
		}
	}
}

func TestRemoveCategory_LeavesDanglingReference(t *testing.T) {
	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	category := svc.AddCategory(context.Background(), "VIP", "indigo")
	client, err := svc.UpsertClient(context.Background(), model.ClientForm{
		Name: "X", Phone: "1", Email: "x@y.z", CategoryID: category.ID,
	}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.RemoveCategory(context.Background(), category.ID)

	if len(svc.ListCategories()) != 0 {
		t.Fatalf("category not removed")
	}

	got, err := svc.GetClient(client.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.CategoryID != category.ID {
		t.Fatalf("client categoryId must stay dangling, got %q", got.CategoryID)
	}
}

func TestSweepDueClients_DispatchesAutomaticForDue(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients: []model.Client{
			{ID: "due", Name: "Due Co", Date: "2024-03-10", Status: model.StatusOverdue},
			{ID: "active", Name: "Fine Co", Date: "2024-03-10", Status: model.StatusActive},
			{ID: "later", Name: "Later Co", Date: "2024-04-01", Status: model.StatusExpired},
		},
		WebhookURL: "https://hooks.example.com/due",
	}}
	dispatcher := &stubDispatcher{}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	svc.SweepDueClients(context.Background(), "2024-03-10")

	if dispatcher.callCount() != 1 {
		t.Fatalf("dispatch calls = %d, want 1", dispatcher.callCount())
	}
	call := dispatcher.calls[0]
	if call.clientID != "due" || call.eventType != model.EventDueAutomatic {
		t.Fatalf("unexpected dispatch: %+v", call)
	}
}

func TestSweepDueClients_RunsOncePerSession(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients: []model.Client{
			{ID: "due", Date: "2024-03-10", Status: model.StatusOverdue},
		},
		WebhookURL: "https://hooks.example.com/due",
	}}
	dispatcher := &stubDispatcher{}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	svc.SweepDueClients(context.Background(), "2024-03-10")

	// Список меняется, но повторный обход в той же сессии запрещён.
	if _, err := svc.UpsertClient(context.Background(), model.ClientForm{
		Name: "Another", Phone: "1", Email: "a@b.c", Date: "2024-03-10", Status: model.StatusExpired,
	}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.SweepDueClients(context.Background(), "2024-03-10")

	if dispatcher.callCount() != 1 {
		t.Fatalf("dispatch calls = %d, want 1 (sweep must run once per session)", dispatcher.callCount())
	}
}

func TestSweepDueClients_FailureIsolation(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients: []model.Client{
			{ID: "first", Date: "2024-03-10", Status: model.StatusOverdue},
			{ID: "second", Date: "2024-03-10", Status: model.StatusExpired},
		},
		WebhookURL: "https://hooks.example.com/due",
	}}
	dispatcher := &stubDispatcher{
		errFor: map[string]error{"first": errors.New("connection refused")},
	}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	svc.SweepDueClients(context.Background(), "2024-03-10")

	if dispatcher.callCount() != 2 {
		t.Fatalf("dispatch calls = %d, want 2: one failure must not abort the sweep", dispatcher.callCount())
	}
}

func TestSweepDueClients_NoURLConfigured(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients: []model.Client{{ID: "due", Date: "2024-03-10", Status: model.StatusOverdue}},
	}}
	dispatcher := &stubDispatcher{}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	svc.SweepDueClients(context.Background(), "2024-03-10")

	if dispatcher.callCount() != 0 {
		t.Fatalf("sweep without webhook URL must not dispatch, got %d calls", dispatcher.callCount())
	}
}

func TestNotifyClient_ManualDispatch(t *testing.T) {
	local := &stubLocal{snap: repository.Snapshot{
		Clients:    []model.Client{{ID: "c-1", Name: "Acme"}},
		WebhookURL: "https://hooks.example.com/due",
	}}
	dispatcher := &stubDispatcher{}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	if err := svc.NotifyClient(context.Background(), "c-1"); err != nil {
		t.Fatalf("NotifyClient error: %v", err)
	}

	if len(dispatcher.calls) != 1 || dispatcher.calls[0].eventType != model.EventDueManual {
		t.Fatalf("expected one manual dispatch, got %+v", dispatcher.calls)
	}

	if err := svc.NotifyClient(context.Background(), "missing"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestNotifyClient_PropagatesDeliveryError(t *testing.T) {
	deliveryErr := errors.New("status 502")
	local := &stubLocal{snap: repository.Snapshot{
		Clients:    []model.Client{{ID: "c-1"}},
		WebhookURL: "https://hooks.example.com/due",
	}}
	dispatcher := &stubDispatcher{errFor: map[string]error{"c-1": deliveryErr}}

	svc := newTestService(local, nil, dispatcher, nil)
	svc.Load(context.Background(), "")

	if err := svc.NotifyClient(context.Background(), "c-1"); !errors.Is(err, deliveryErr) {
		t.Fatalf("expected delivery error to reach caller, got %v", err)
	}
}

func TestSetWebhookURL_Persists(t *testing.T) {
	local := &stubLocal{}

	svc := newTestService(local, nil, &stubDispatcher{}, nil)
	svc.Load(context.Background(), "")

	svc.SetWebhookURL("https://hooks.example.com/v2")

	if local.snap.WebhookURL != "https://hooks.example.com/v2" {
		t.Fatalf("webhook URL not persisted: %q", local.snap.WebhookURL)
	}
	if svc.WebhookURL() != "https://hooks.example.com/v2" {
		t.Fatalf("webhook URL not served: %q", svc.WebhookURL())
	}
}

func TestAnalyzeClient_Unconfigured(t *testing.T) {
	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, &stubInsight{configured: false})
	svc.Load(context.Background(), "")

	_, err := svc.AnalyzeClient(context.Background(), model.Client{Name: "Acme"})
	if !errors.Is(err, ErrInsightUnavailable) {
		t.Fatalf("expected ErrInsightUnavailable, got %v", err)
	}
}

func TestAnalyzeClient_BackendErrorYieldsNil(t *testing.T) {
	insight := &stubInsight{configured: true, analyzeErr: errors.New("unexpected status 500")}

	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, insight)
	svc.Load(context.Background(), "")

	analysis, err := svc.AnalyzeClient(context.Background(), model.Client{Name: "Acme"})
	if err == nil {
		t.Fatalf("expected error to reach immediate caller")
	}
	if analysis != nil {
		t.Fatalf("expected nil analysis on backend error, got %+v", analysis)
	}
}

func TestDraftClientMessage(t *testing.T) {
	insight := &stubInsight{configured: true, text: "Hello from Nexus"}

	svc := newTestService(&stubLocal{}, nil, &stubDispatcher{}, insight)
	svc.Load(context.Background(), "")

	text, err := svc.DraftClientMessage(context.Background(), model.Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("DraftClientMessage error: %v", err)
	}
	if text != "Hello from Nexus" {
		t.Fatalf("unexpected text: %q", text)
	}
}
