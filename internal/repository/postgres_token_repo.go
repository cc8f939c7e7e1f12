package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// PostgresMagicLinkRepo はPostgreSQLを使用したマジックリンクリポジトリ。
type PostgresMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRepo はPostgresMagicLinkRepoを生成する。
func NewPostgresMagicLinkRepo(db *sql.DB) *PostgresMagicLinkRepo {
	return &PostgresMagicLinkRepo{db: db}
}

// Create はマジックリンクを作成する。
func (r *PostgresMagicLinkRepo) Create(ctx context.Context, link *model.MagicLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (id, email, token, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.Email, link.Token, link.ExpiresAt, link.Used, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create magic link: %w", err)
	}
	return nil
}

// FindByToken はトークンでマジックリンクを検索する。見つからない場合はnilを返す。
func (r *PostgresMagicLinkRepo) FindByToken(ctx context.Context, token string) (*model.MagicLink, error) {
	link := &model.MagicLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, token, expires_at, used, created_at
		 FROM magic_links
		 WHERE token = $1`,
		token,
	).Scan(&link.ID, &link.Email, &link.Token, &link.ExpiresAt, &link.Used, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find magic link: %w", err)
	}

	return link, nil
}

// MarkUsed はマジックリンクを使用済みにする。
func (r *PostgresMagicLinkRepo) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE magic_links SET used = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark magic link used: %w", err)
	}
	return nil
}

// PostgresOTPChallengeRepo はPostgreSQLを使用したワンタイムコードリポジトリ。
type PostgresOTPChallengeRepo struct {
	db *sql.DB
}

// NewPostgresOTPChallengeRepo はPostgresOTPChallengeRepoを生成する。
func NewPostgresOTPChallengeRepo(db *sql.DB) *PostgresOTPChallengeRepo {
	return &PostgresOTPChallengeRepo{db: db}
}

// Create はチャレンジを作成する。
func (r *PostgresOTPChallengeRepo) Create(ctx context.Context, challenge *model.OTPChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_challenges (id, user_id, code, purpose, expires_at, consumed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		challenge.ID, challenge.UserID, challenge.Code, string(challenge.Purpose),
		challenge.ExpiresAt, challenge.Consumed, challenge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}
	return nil
}

// FindActive は指定ユーザー・用途の未消費チャレンジのうち最新の1件を返す。
func (r *PostgresOTPChallengeRepo) FindActive(ctx context.Context, userID string, purpose model.OTPPurpose) (*model.OTPChallenge, error) {
	challenge := &model.OTPChallenge{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, code, purpose, expires_at, consumed, created_at
		 FROM otp_challenges
		 WHERE user_id = $1 AND purpose = $2 AND consumed = FALSE
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, string(purpose),
	).Scan(&challenge.ID, &challenge.UserID, &challenge.Code, &challenge.Purpose,
		&challenge.ExpiresAt, &challenge.Consumed, &challenge.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find otp challenge: %w", err)
	}

	return challenge, nil
}

// MarkConsumed はチャレンジを消費済みにする。
func (r *PostgresOTPChallengeRepo) MarkConsumed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE otp_challenges SET consumed = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark otp challenge consumed: %w", err)
	}
	return nil
}

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワード再設定リポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create は再設定トークンを作成する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, reset *model.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (id, user_id, token, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reset.ID, reset.UserID, reset.Token, reset.ExpiresAt, reset.Used, reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// FindByToken はトークンで再設定レコードを検索する。見つからない場合はnilを返す。
func (r *PostgresPasswordResetRepo) FindByToken(ctx context.Context, token string) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at, used, created_at
		 FROM password_resets
		 WHERE token = $1`,
		token,
	).Scan(&reset.ID, &reset.UserID, &reset.Token, &reset.ExpiresAt, &reset.Used, &reset.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset: %w", err)
	}

	return reset, nil
}

// MarkUsed は再設定トークンを使用済みにする。
func (r *PostgresPasswordResetRepo) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark password reset used: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ MagicLinkRepository     = (*PostgresMagicLinkRepo)(nil)
	_ OTPChallengeRepository  = (*PostgresOTPChallengeRepo)(nil)
	_ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
)
