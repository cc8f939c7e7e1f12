package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// PostgresStudySessionRepo はPostgreSQLを使用した学習セッションリポジトリ。
type PostgresStudySessionRepo struct {
	db *sql.DB
}

// NewPostgresStudySessionRepo はPostgresStudySessionRepoを生成する。
func NewPostgresStudySessionRepo(db *sql.DB) *PostgresStudySessionRepo {
	return &PostgresStudySessionRepo{db: db}
}

// Create はセッション結果を作成する。
func (r *PostgresStudySessionRepo) Create(ctx context.Context, session *model.StudySession) error {
	var quizAnswersJSON, flashcardsJSON []byte
	var err error

	if session.QuizAnswers != nil {
		quizAnswersJSON, err = json.Marshal(session.QuizAnswers)
		if err != nil {
			return fmt.Errorf("failed to marshal quiz answers: %w", err)
		}
	}
	if session.FlashcardsReviewed != nil {
		flashcardsJSON, err = json.Marshal(session.FlashcardsReviewed)
		if err != nil {
			return fmt.Errorf("failed to marshal flashcard reviews: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, study_set_id, session_type,
		 quiz_answers, quiz_score, flashcards_reviewed, duration_seconds, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.UserID, session.StudySetID, string(session.SessionType),
		nullBytes(quizAnswersJSON), session.QuizScore, nullBytes(flashcardsJSON),
		session.DurationSeconds, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create study session: %w", err)
	}
	return nil
}

// ListByStudySet は学習セットに紐づくセッションをcompleted_at降順で取得する。
func (r *PostgresStudySessionRepo) ListByStudySet(ctx context.Context, userID, studySetID string, limit int) ([]*model.StudySession, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, user_id, study_set_id, session_type,
		 quiz_answers, quiz_score, flashcards_reviewed, duration_seconds, completed_at
		 FROM study_sessions
		 WHERE user_id = $1 AND study_set_id = $2
		 ORDER BY completed_at DESC
		 LIMIT %d`, limit),
		userID, studySetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list study sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.StudySession
	for rows.Next() {
		s := &model.StudySession{}
		var quizAnswersJSON, flashcardsJSON []byte
		var quizScore sql.NullInt64

		err := rows.Scan(
			&s.ID, &s.UserID, &s.StudySetID, &s.SessionType,
			&quizAnswersJSON, &quizScore, &flashcardsJSON,
			&s.DurationSeconds, &s.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study session: %w", err)
		}

		if quizAnswersJSON != nil {
			if err := json.Unmarshal(quizAnswersJSON, &s.QuizAnswers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal quiz answers: %w", err)
			}
		}
		if flashcardsJSON != nil {
			if err := json.Unmarshal(flashcardsJSON, &s.FlashcardsReviewed); err != nil {
				return nil, fmt.Errorf("failed to unmarshal flashcard reviews: %w", err)
			}
		}
		if quizScore.Valid {
			score := int(quizScore.Int64)
			s.QuizScore = &score
		}

		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate study sessions: %w", err)
	}

	return sessions, nil
}

// nullBytes は空のバイト列をNULLとして扱うためのヘルパー。
func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// compile-time interface check
var _ StudySessionRepository = (*PostgresStudySessionRepo)(nil)
