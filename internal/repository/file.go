// Package repository содержит реализации хранилищ данных CRM-сервиса:
// локальный файловый снапшот и удалённое хранилище в PostgreSQL.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmeshcher/nexus-crm/internal/model"
)

// Snapshot — полное персистируемое состояние сервиса.
type Snapshot struct {
	Clients    []model.Client   `json:"clients"`
	Categories []model.Category `json:"categories"`
	WebhookURL string           `json:"webhook_url"`
}

// FileStore — долговременное локальное хранилище: один JSON-файл,
// перезаписываемый целиком при каждой мутации.
type FileStore struct {
	path string
}

// NewFileStore создаёт файловое хранилище по указанному пути.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load читает снапшот из файла. Отсутствующий файл не является ошибкой:
// возвращается пустой снапшот.
func (s *FileStore) Load() (Snapshot, error) {
	var snap Snapshot

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, nil
		}
		return snap, fmt.Errorf("read snapshot: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

// Save атомарно записывает снапшот: сначала во временный файл,
// затем rename поверх основного.
func (s *FileStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}
