package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// PostgresStudySetRepo はPostgreSQLを使用した学習セットリポジトリ。
// 生成済みコンテンツ（mcqs, flashcards）はJSONBカラムに保存する。
type PostgresStudySetRepo struct {
	db *sql.DB
}

// NewPostgresStudySetRepo はPostgresStudySetRepoを生成する。
func NewPostgresStudySetRepo(db *sql.DB) *PostgresStudySetRepo {
	return &PostgresStudySetRepo{db: db}
}

const studySetColumns = `id, user_id, material_id, title, description, summary,
	 mcqs, flashcards, model_used, credits_used, times_studied, last_studied_at, created_at`

func scanStudySet(scan func(...any) error) (*model.StudySet, error) {
	set := &model.StudySet{}
	var mcqsJSON, flashcardsJSON []byte
	var lastStudiedAt sql.NullTime

	err := scan(
		&set.ID, &set.UserID, &set.MaterialID, &set.Title, &set.Description,
		&set.Summary, &mcqsJSON, &flashcardsJSON, &set.ModelUsed, &set.CreditsUsed,
		&set.TimesStudied, &lastStudiedAt, &set.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(mcqsJSON, &set.MCQs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mcqs: %w", err)
	}
	if err := json.Unmarshal(flashcardsJSON, &set.Flashcards); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flashcards: %w", err)
	}
	if lastStudiedAt.Valid {
		set.LastStudiedAt = &lastStudiedAt.Time
	}

	return set, nil
}

// Create は学習セットを作成する。
func (r *PostgresStudySetRepo) Create(ctx context.Context, set *model.StudySet) error {
	mcqsJSON, err := json.Marshal(set.MCQs)
	if err != nil {
		return fmt.Errorf("failed to marshal mcqs: %w", err)
	}
	flashcardsJSON, err := json.Marshal(set.Flashcards)
	if err != nil {
		return fmt.Errorf("failed to marshal flashcards: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO study_sets (id, user_id, material_id, title, description, summary,
		 mcqs, flashcards, model_used, credits_used, times_studied, last_studied_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		set.ID, set.UserID, set.MaterialID, set.Title, set.Description, set.Summary,
		mcqsJSON, flashcardsJSON, set.ModelUsed, set.CreditsUsed,
		set.TimesStudied, set.LastStudiedAt, set.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create study set: %w", err)
	}
	return nil
}

// FindByID は指定IDの学習セットを取得する。見つからない場合はnilを返す。
func (r *PostgresStudySetRepo) FindByID(ctx context.Context, id string) (*model.StudySet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studySetColumns+` FROM study_sets WHERE id = $1`,
		id,
	)
	set, err := scanStudySet(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find study set: %w", err)
	}
	return set, nil
}

// ListByUserID はユーザーの学習セット一覧をcreated_at降順カーソルで取得する。
func (r *PostgresStudySetRepo) ListByUserID(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.StudySet, error) {
	query := `SELECT ` + studySetColumns + ` FROM study_sets WHERE user_id = $1`
	args := []any{userID}
	if !cursor.IsZero() {
		query += ` AND created_at < $2`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list study sets: %w", err)
	}
	defer rows.Close()

	var sets []*model.StudySet
	for rows.Next() {
		set, err := scanStudySet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate study sets: %w", err)
	}

	return sets, nil
}

// BumpStudyStats はtimes_studiedをインクリメントしlast_studied_atを更新する。
// 生成済みコンテンツのカラムには触れない。
func (r *PostgresStudySetRepo) BumpStudyStats(ctx context.Context, id string, studiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE study_sets
		 SET times_studied = times_studied + 1, last_studied_at = $2
		 WHERE id = $1`,
		id, studiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to bump study stats: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StudySetRepository = (*PostgresStudySetRepo)(nil)
