package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/nexus-crm/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCategoryExists возвращается при попытке создать категорию с уже занятым именем.
var ErrCategoryExists = errors.New("category already exists")

// PostgresRepository предоставляет доступ к удалённому хранилищу в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListClients возвращает всех клиентов. Удалённое хранилище диктует
// собственный порядок: по имени клиента.
func (r *PostgresRepository) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, email, value, to_char(due_date, 'YYYY-MM-DD'), status, notes, COALESCE(category_id, '')
		 FROM clients
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Value, &c.Date, &status, &c.Notes, &c.CategoryID); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c.Status = model.ClientStatus(status)
		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return clients, nil
}

// ListCategories возвращает все категории в порядке по имени.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, color FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

// UpsertClient создаёт или полностью обновляет запись клиента.
func (r *PostgresRepository) UpsertClient(ctx context.Context, c model.Client) error {
	categoryID := any(nil)
	if c.CategoryID != "" {
		categoryID = c.CategoryID
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO clients (id, name, phone, email, value, due_date, status, notes, category_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   phone = EXCLUDED.phone,
		   email = EXCLUDED.email,
		   value = EXCLUDED.value,
		   due_date = EXCLUDED.due_date,
		   status = EXCLUDED.status,
		   notes = EXCLUDED.notes,
		   category_id = EXCLUDED.category_id`,
		c.ID, c.Name, c.Phone, c.Email, c.Value, c.Date, string(c.Status), c.Notes, categoryID,
	)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// DeleteClient удаляет запись клиента. Отсутствие записи не является ошибкой.
func (r *PostgresRepository) DeleteClient(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

// AddCategory создаёт категорию.
func (r *PostgresRepository) AddCategory(ctx context.Context, c model.Category) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO categories (id, name, color) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.Color,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrCategoryExists, c.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// DeleteCategory удаляет категорию. Клиентов с этой категорией не трогает.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
