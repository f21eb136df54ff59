// Package service реализует бизнес-логику CRM-сервиса Nexus: хранилище
// клиентов с локальным снапшотом и удалённым зеркалом, политику статусов
// и отправку уведомлений.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/nexus-crm/internal/model"
	"github.com/mmeshcher/nexus-crm/internal/policy"
	"github.com/mmeshcher/nexus-crm/internal/repository"
)

var (
	// ErrClientNotFound возвращается, если клиент с указанным идентификатором не найден.
	ErrClientNotFound = errors.New("client not found")
	// ErrInsightUnavailable возвращается, когда сервис анализа не сконфигурирован.
	ErrInsightUnavailable = errors.New("insight service not configured")
)

// RemoteRepository описывает контракт удалённого хранилища данных.
type RemoteRepository interface {
	Close() error
	ListClients(ctx context.Context) ([]model.Client, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpsertClient(ctx context.Context, c model.Client) error
	DeleteClient(ctx context.Context, id string) error
	AddCategory(ctx context.Context, c model.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

// LocalStore описывает контракт локального долговременного хранилища.
type LocalStore interface {
	Load() (repository.Snapshot, error)
	Save(repository.Snapshot) error
}

// Dispatcher описывает контракт отправки уведомлений.
type Dispatcher interface {
	Dispatch(ctx context.Context, targetURL string, client model.Client, eventType model.EventType) error
}

// Insight описывает контракт сервиса анализа заметок.
type Insight interface {
	Configured() bool
	Analyze(ctx context.Context, client model.Client) (*model.AIAnalysis, error)
	Message(ctx context.Context, client model.Client) (string, error)
}

// Service содержит бизнес-логику CRM-сервиса Nexus.
//
// Список клиентов и категорий живёт в памяти под мьютексом; каждая мутация
// синхронно записывает полный снапшот в локальное хранилище и, если при
// старте удалось прочитать удалённое, зеркалируется в него (ошибки зеркала
// поглощаются и только логируются).
type Service struct {
	local      LocalStore
	remote     RemoteRepository
	dispatcher Dispatcher
	insight    Insight
	logger     *zap.Logger

	mu           sync.Mutex
	clients      []model.Client
	categories   []model.Category
	webhookURL   string
	remoteActive bool
	sweepDone    bool

	newID func() string
}

// NewService создаёт сервис с указанными хранилищами и клиентами.
// remote может быть nil, если удалённое хранилище не сконфигурировано.
func NewService(local LocalStore, remote RemoteRepository, dispatcher Dispatcher, insight Insight, logger *zap.Logger) *Service {
	return &Service{
		local:      local,
		remote:     remote,
		dispatcher: dispatcher,
		insight:    insight,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.remote != nil {
		return s.remote.Close()
	}
	return nil
}

// Load инициализирует состояние: сначала пробует удалённое хранилище,
// при любой его ошибке откатывается на локальный снапшот. Сервис всегда
// остаётся в рабочем состоянии; пустое хранилище засевается одной
// демонстрационной записью.
func (s *Service) Load(ctx context.Context, initialWebhookURL string) {
	snap, err := s.local.Load()
	if err != nil {
		s.logger.Error("load local snapshot", zap.Error(err))
		snap = repository.Snapshot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = snap.Clients
	s.categories = snap.Categories
	s.webhookURL = snap.WebhookURL
	if s.webhookURL == "" {
		s.webhookURL = initialWebhookURL
	}

	if s.remote != nil {
		clients, cErr := s.remote.ListClients(ctx)
		categories, gErr := s.remote.ListCategories(ctx)
		if cErr != nil || gErr != nil {
			// Удалённое хранилище недоступно: продолжаем на локальной копии,
			// без ретраев и последующей сверки.
			s.logger.Warn("remote store unavailable, serving local snapshot",
				zap.NamedError("clients", cErr), zap.NamedError("categories", gErr))
		} else {
			s.clients = clients
			s.categories = categories
			s.remoteActive = true
		}
	}

	if len(s.clients) == 0 && len(s.categories) == 0 {
		s.clients = []model.Client{seedClient(s.newID())}
	}

	s.persistLocked()
}

// seedClient возвращает демонстрационную запись для пустого хранилища.
func seedClient(id string) model.Client {
	return model.Client{
		ID:     id,
		Name:   "Acme Corp",
		Phone:  "+1 555 0100",
		Email:  "billing@acme.example",
		Value:  1200,
		Date:   time.Now().Format("2006-01-02"),
		Status: model.StatusActive,
		Notes:  "Example client. Edit or delete it to get started.",
	}
}

// persistLocked записывает текущий снапшот в локальное хранилище.
// Вызывается только под s.mu. Ошибка записи логируется и поглощается:
// хранилище обязано продолжать отдавать данные из памяти.
func (s *Service) persistLocked() {
	snap := repository.Snapshot{
		Clients:    append([]model.Client(nil), s.clients...),
		Categories: append([]model.Category(nil), s.categories...),
		WebhookURL: s.webhookURL,
	}
	if err := s.local.Save(snap); err != nil {
		s.logger.Error("persist local snapshot", zap.Error(err))
	}
}

// ListClients возвращает копию списка клиентов в стабильном порядке.
func (s *Service) ListClients() []model.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Client(nil), s.clients...)
}

// GetClient возвращает клиента по идентификатору.
func (s *Service) GetClient(id string) (model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Client{}, ErrClientNotFound
}

// UpsertClient создаёт нового клиента или частично обновляет существующего.
// При обновлении заполненные поля формы заменяют старые значения, остальные
// сохраняются. Новый клиент получает свежий уникальный идентификатор и
// добавляется в начало списка.
func (s *Service) UpsertClient(ctx context.Context, form model.ClientForm, existingID string) (model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID != "" {
		for i, c := range s.clients {
			if c.ID != existingID {
				continue
			}
			merged := mergeClient(c, form)
			s.clients[i] = merged
			s.persistLocked()
			s.mirrorUpsert(ctx, merged)
			return merged, nil
		}
		return model.Client{}, ErrClientNotFound
	}

	created := model.Client{
		ID:         s.newID(),
		Name:       form.Name,
		Phone:      form.Phone,
		Email:      form.Email,
		Date:       form.Date,
		Status:     form.Status,
		Notes:      form.Notes,
		CategoryID: form.CategoryID,
	}
	if form.Value != nil {
		created.Value = *form.Value
	}
	if created.Status == "" {
		created.Status = model.StatusActive
	}
	if created.Date == "" {
		created.Date = time.Now().Format("2006-01-02")
	}

	s.clients = append([]model.Client{created}, s.clients...)
	s.persistLocked()
	s.mirrorUpsert(ctx, created)
	return created, nil
}

func mergeClient(base model.Client, form model.ClientForm) model.Client {
	if form.Name != "" {
		base.Name = form.Name
	}
	if form.Phone != "" {
		base.Phone = form.Phone
	}
	if form.Email != "" {
		base.Email = form.Email
	}
	if form.Value != nil {
		base.Value = *form.Value
	}
	if form.Date != "" {
		base.Date = form.Date
	}
	if form.Status != "" {
		base.Status = form.Status
	}
	if form.Notes != "" {
		base.Notes = form.Notes
	}
	if form.CategoryID != "" {
		base.CategoryID = form.CategoryID
	}
	return base
}

// DeleteClient удаляет клиента. Повторное удаление того же идентификатора
// не является ошибкой.
func (s *Service) DeleteClient(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.clients {
		if c.ID == id {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			s.persistLocked()
			s.mirrorDelete(ctx, id)
			return
		}
	}
}

// ListCategories возвращает копию списка категорий.
func (s *Service) ListCategories() []model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Category(nil), s.categories...)
}

// AddCategory создаёт категорию с указанными именем и цветом.
func (s *Service) AddCategory(ctx context.Context, name, color string) model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	category := model.Category{
		ID:    s.newID(),
		Name:  name,
		Color: color,
	}
	s.categories = append(s.categories, category)
	s.persistLocked()

	if s.remoteActive {
		if err := s.remote.AddCategory(ctx, category); err != nil {
			if errors.Is(err, repository.ErrCategoryExists) {
				s.logger.Warn("category already exists in remote store", zap.String("name", name))
			} else {
				s.logger.Error("mirror add category", zap.Error(err))
			}
		}
	}

	return category
}

// RemoveCategory удаляет категорию. Клиенты с этой категорией не меняются:
// повисшая ссылка читается как "без категории".
func (s *Service) RemoveCategory(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.categories {
		if c.ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			s.persistLocked()
			if s.remoteActive {
				if err := s.remote.DeleteCategory(ctx, id); err != nil {
					s.logger.Error("mirror delete category", zap.Error(err))
				}
			}
			return
		}
	}
}

// WebhookURL возвращает текущий адрес уведомлений.
func (s *Service) WebhookURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookURL
}

// SetWebhookURL сохраняет адрес уведомлений.
func (s *Service) SetWebhookURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
	s.persistLocked()
}

func (s *Service) mirrorUpsert(ctx context.Context, c model.Client) {
	if !s.remoteActive {
		return
	}
	if err := s.remote.UpsertClient(ctx, c); err != nil {
		s.logger.Error("mirror upsert client", zap.Error(err), zap.String("clientID", c.ID))
	}
}

func (s *Service) mirrorDelete(ctx context.Context, id string) {
	if !s.remoteActive {
		return
	}
	if err := s.remote.DeleteClient(ctx, id); err != nil {
		s.logger.Error("mirror delete client", zap.Error(err), zap.String("clientID", id))
	}
}

// NotifyClient отправляет ручное уведомление по указанному клиенту.
// Ошибка доставки возвращается вызывающему, чтобы тот показал её пользователю.
func (s *Service) NotifyClient(ctx context.Context, id string) error {
	client, err := s.GetClient(id)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, s.WebhookURL(), client, model.EventDueManual)
}

// SweepDueClients один раз за сессию обходит клиентов и отправляет
// автоматические уведомления по тем, чей срок наступил сегодня.
// Повторный вызов в той же сессии ничего не делает, даже если список
// клиентов изменился. Ошибка доставки по одному клиенту логируется и
// не мешает попыткам по остальным.
func (s *Service) SweepDueClients(ctx context.Context, today string) {
	s.mu.Lock()
	if s.sweepDone {
		s.mu.Unlock()
		return
	}
	s.sweepDone = true
	clients := append([]model.Client(nil), s.clients...)
	targetURL := s.webhookURL
	s.mu.Unlock()

	if targetURL == "" {
		return
	}

	// Каждая отправка — независимая задача: ошибка одной не отменяет остальные.
	var wg sync.WaitGroup
	for _, c := range clients {
		if !policy.IsDueToday(c, today) {
			continue
		}
		wg.Add(1)
		go func(c model.Client) {
			defer wg.Done()
			if err := s.dispatcher.Dispatch(ctx, targetURL, c, model.EventDueAutomatic); err != nil {
				s.logger.Warn("automatic notification failed",
					zap.Error(err), zap.String("clientID", c.ID))
			}
		}(c)
	}
	wg.Wait()
}

// StartDueSweep запускает одноразовый обход клиентов в фоне.
func (s *Service) StartDueSweep(ctx context.Context) {
	if s.dispatcher == nil {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.SweepDueClients(ctx, time.Now().Format("2006-01-02"))
	}()
}

// AnalyzeClient пересылает данные клиента сервису анализа и возвращает
// структурированный результат. Ошибка анализа логируется и возвращается
// непосредственному вызывающему, не дальше.
func (s *Service) AnalyzeClient(ctx context.Context, client model.Client) (*model.AIAnalysis, error) {
	if s.insight == nil || !s.insight.Configured() {
		return nil, ErrInsightUnavailable
	}

	analysis, err := s.insight.Analyze(ctx, client)
	if err != nil {
		s.logger.Error("analyze client notes", zap.Error(err), zap.String("clientID", client.ID))
		return nil, err
	}
	return analysis, nil
}

// DraftClientMessage просит сервис анализа составить сообщение для клиента.
func (s *Service) DraftClientMessage(ctx context.Context, client model.Client) (string, error) {
	if s.insight == nil || !s.insight.Configured() {
		return "", ErrInsightUnavailable
	}

	text, err := s.insight.Message(ctx, client)
	if err != nil {
		s.logger.Error("draft client message", zap.Error(err), zap.String("clientID", client.ID))
		return "", err
	}
	return text, nil
}
