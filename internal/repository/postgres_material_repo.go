package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// PostgresMaterialRepo はPostgreSQLを使用した学習素材リポジトリ。
type PostgresMaterialRepo struct {
	db *sql.DB
}

// NewPostgresMaterialRepo はPostgresMaterialRepoを生成する。
func NewPostgresMaterialRepo(db *sql.DB) *PostgresMaterialRepo {
	return &PostgresMaterialRepo{db: db}
}

const materialColumns = `id, user_id, title, description, source_type, object_key, source_url,
	 content_markdown, content_html, content_preview, word_count, status, error_message,
	 file_size, file_name, mime_type, created_at, updated_at`

func scanMaterial(scan func(...any) error) (*model.Material, error) {
	m := &model.Material{}
	err := scan(
		&m.ID, &m.UserID, &m.Title, &m.Description, &m.SourceType, &m.ObjectKey,
		&m.SourceURL, &m.ContentMarkdown, &m.ContentHTML, &m.ContentPreview, &m.WordCount,
		&m.Status, &m.ErrorMessage, &m.FileSize, &m.FileName, &m.MimeType,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create は素材を作成する。
func (r *PostgresMaterialRepo) Create(ctx context.Context, material *model.Material) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO materials (id, user_id, title, description, source_type, object_key,
		 source_url, content_markdown, content_html, content_preview, word_count, status,
		 error_message, file_size, file_name, mime_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		material.ID, material.UserID, material.Title, material.Description,
		string(material.SourceType), material.ObjectKey, material.SourceURL,
		material.ContentMarkdown, material.ContentHTML, material.ContentPreview,
		material.WordCount, string(material.Status), material.ErrorMessage,
		material.FileSize, material.FileName, material.MimeType,
		material.CreatedAt, material.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create material: %w", err)
	}
	return nil
}

// FindByID は指定IDの素材を取得する。見つからない場合はnilを返す。
func (r *PostgresMaterialRepo) FindByID(ctx context.Context, id string) (*model.Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = $1`,
		id,
	)
	m, err := scanMaterial(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	return m, nil
}

// ListByUserID はユーザーの素材一覧をcreated_at降順カーソルで取得する。
func (r *PostgresMaterialRepo) ListByUserID(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE user_id = $1`
	args := []any{userID}
	if !cursor.IsZero() {
		query += ` AND created_at < $2`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	var materials []*model.Material
	for rows.Next() {
		m, err := scanMaterial(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate materials: %w", err)
	}

	return materials, nil
}

// UpdateStatus は素材の処理状態とエラーメッセージを更新する。
func (r *PostgresMaterialRepo) UpdateStatus(ctx context.Context, id string, status model.MaterialStatus, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE materials SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, string(status), errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update material status: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MaterialRepository = (*PostgresMaterialRepo)(nil)
