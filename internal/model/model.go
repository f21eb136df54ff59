// Package model содержит доменные сущности CRM-сервиса Nexus.
package model

import "time"

// ClientStatus описывает статус жизненного цикла клиента.
//
// Статус выставляется пользователем вручную и нигде не вычисляется
// из даты: клиент с прошедшей датой и статусом Active не считается
// просроченным ни одной частью системы.
type ClientStatus string

const (
	StatusActive  ClientStatus = "Active"
	StatusOverdue ClientStatus = "Overdue"
	StatusExpired ClientStatus = "Expired"
)

// IsValidStatus сообщает, является ли значение допустимым статусом клиента.
func IsValidStatus(s ClientStatus) bool {
	switch s {
	case StatusActive, StatusOverdue, StatusExpired:
		return true
	}
	return false
}

// Client описывает запись клиента с суммой контракта, датой и статусом.
type Client struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Phone      string       `json:"phone"`
	Email      string       `json:"email"`
	Value      float64      `json:"value"`
	Date       string       `json:"date"` // YYYY-MM-DD
	Status     ClientStatus `json:"status"`
	Notes      string       `json:"notes"`
	CategoryID string       `json:"categoryId,omitempty"`
}

// ClientForm содержит данные формы создания или редактирования клиента.
// При частичном обновлении незаполненные поля не затирают существующие
// значения, слияние выполняет сервис. Value — указатель, чтобы отличать
// отсутствующее поле от явного нуля.
type ClientForm struct {
	Name       string       `json:"name"`
	Phone      string       `json:"phone"`
	Email      string       `json:"email"`
	Value      *float64     `json:"value,omitempty"`
	Date       string       `json:"date"`
	Status     ClientStatus `json:"status"`
	Notes      string       `json:"notes"`
	CategoryID string       `json:"categoryId,omitempty"`
}

// Category описывает категорию клиентов.
//
// Ссылка Client.CategoryID слабая: удаление категории не каскадируется,
// повисшую ссылку читатели трактуют как "без категории".
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CategoryColors задаёт фиксированную палитру цветов категорий.
var CategoryColors = []string{
	"blue", "indigo", "purple", "pink", "red",
	"orange", "amber", "green", "teal", "cyan",
}

// IsValidCategoryColor сообщает, входит ли цвет в палитру.
func IsValidCategoryColor(color string) bool {
	for _, c := range CategoryColors {
		if c == color {
			return true
		}
	}
	return false
}

// EventType описывает тип события уведомления.
type EventType string

const (
	EventDueManual    EventType = "due_client_manual"
	EventDueAutomatic EventType = "due_client_automatic"
)

// NotificationEvent — снимок данных клиента на момент отправки уведомления.
// Событие не персистится; последующие изменения клиента на него не влияют.
type NotificationEvent struct {
	EventType  EventType `json:"event_type"`
	Timestamp  string    `json:"timestamp"`
	ClientID   string    `json:"client_id"`
	ClientName string    `json:"client_name"`
	DueDate    string    `json:"due_date"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Notes      string    `json:"notes"`
}

// NewNotificationEvent строит событие уведомления из текущего состояния клиента.
func NewNotificationEvent(c Client, eventType EventType, now time.Time) NotificationEvent {
	return NotificationEvent{
		EventType:  eventType,
		Timestamp:  now.UTC().Format(time.RFC3339),
		ClientID:   c.ID,
		ClientName: c.Name,
		DueDate:    c.Date,
		Amount:     c.Value,
		Status:     string(c.Status),
		Email:      c.Email,
		Phone:      c.Phone,
		Notes:      c.Notes,
	}
}

// AIAnalysis — структурированный результат анализа заметок клиента.
type AIAnalysis struct {
	Summary   string   `json:"summary"`
	Sentiment string   `json:"sentiment"`
	NextSteps []string `json:"nextSteps"`
}
