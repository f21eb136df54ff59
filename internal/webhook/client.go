// Package webhook предоставляет клиент для отправки уведомлений
// на внешний настраиваемый URL автоматизации.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mmeshcher/nexus-crm/internal/model"
)

// DeliveryError описывает неудачную попытку доставки уведомления.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error реализует интерфейс error.
func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("webhook delivery to %s failed: status %d", e.URL, e.StatusCode)
}

// Unwrap возвращает первопричину ошибки доставки.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Client инкапсулирует HTTP-доставку событий уведомлений.
// Семантика fire-and-forget: одна попытка POST, без ретраев
// и подтверждений сверх HTTP-статуса.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewClient создаёт клиент отправки уведомлений.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

// Dispatch строит событие из текущего состояния клиента и отправляет его
// одним POST-запросом на targetURL. Любой не-2xx статус или сетевая ошибка
// возвращается как *DeliveryError.
func (c *Client) Dispatch(ctx context.Context, targetURL string, client model.Client, eventType model.EventType) error {
	if targetURL == "" {
		return &DeliveryError{URL: targetURL, Err: fmt.Errorf("webhook URL not configured")}
	}

	event := model.NewNotificationEvent(client, eventType, c.now())

	body, err := json.Marshal(event)
	if err != nil {
		return &DeliveryError{URL: targetURL, Err: fmt.Errorf("encode event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: targetURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{URL: targetURL, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	return nil
}
