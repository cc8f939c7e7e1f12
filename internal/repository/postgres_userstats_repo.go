package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// PostgresUserStatsRepo はPostgreSQLを使用した学習統計リポジトリ。
type PostgresUserStatsRepo struct {
	db *sql.DB
}

// NewPostgresUserStatsRepo はPostgresUserStatsRepoを生成する。
func NewPostgresUserStatsRepo(db *sql.DB) *PostgresUserStatsRepo {
	return &PostgresUserStatsRepo{db: db}
}

// FindByUserID は指定ユーザーの統計を取得する。見つからない場合はnilを返す。
func (r *PostgresUserStatsRepo) FindByUserID(ctx context.Context, userID string) (*model.UserStats, error) {
	stats := &model.UserStats{}
	var lastStudyDate sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, total_materials_uploaded, total_study_sets_created,
		 total_study_sessions, total_questions_answered, total_correct_answers,
		 total_study_time_seconds, current_streak, longest_streak, last_study_date, updated_at
		 FROM user_stats
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&stats.UserID, &stats.TotalMaterialsUploaded, &stats.TotalStudySetsCreated,
		&stats.TotalStudySessions, &stats.TotalQuestionsAnswered, &stats.TotalCorrectAnswers,
		&stats.TotalStudyTimeSeconds, &stats.CurrentStreak, &stats.LongestStreak,
		&lastStudyDate, &stats.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user stats: %w", err)
	}

	if lastStudyDate.Valid {
		stats.LastStudyDate = &lastStudyDate.Time
	}

	return stats, nil
}

// Upsert は統計を冪等にUPSERTする。
func (r *PostgresUserStatsRepo) Upsert(ctx context.Context, stats *model.UserStats) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, total_materials_uploaded, total_study_sets_created,
		 total_study_sessions, total_questions_answered, total_correct_answers,
		 total_study_time_seconds, current_streak, longest_streak, last_study_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (user_id) DO UPDATE SET
		   total_materials_uploaded = EXCLUDED.total_materials_uploaded,
		   total_study_sets_created = EXCLUDED.total_study_sets_created,
		   total_study_sessions = EXCLUDED.total_study_sessions,
		   total_questions_answered = EXCLUDED.total_questions_answered,
		   total_correct_answers = EXCLUDED.total_correct_answers,
		   total_study_time_seconds = EXCLUDED.total_study_time_seconds,
		   current_streak = EXCLUDED.current_streak,
		   longest_streak = EXCLUDED.longest_streak,
		   last_study_date = EXCLUDED.last_study_date,
		   updated_at = EXCLUDED.updated_at`,
		stats.UserID, stats.TotalMaterialsUploaded, stats.TotalStudySetsCreated,
		stats.TotalStudySessions, stats.TotalQuestionsAnswered, stats.TotalCorrectAnswers,
		stats.TotalStudyTimeSeconds, stats.CurrentStreak, stats.LongestStreak,
		stats.LastStudyDate, stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user stats: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserStatsRepository = (*PostgresUserStatsRepo)(nil)
