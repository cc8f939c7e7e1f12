package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smrtstudy/internal/email"
	"github.com/hitoshi/smrtstudy/internal/model"
)

// RequestMagicLink はパスワードレスログイン用のマジックリンクをメール送信する。
// 未登録のメールアドレスにも送信し、アカウントはリンクの検証時に作成される。
func (s *Service) RequestMagicLink(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if err := validateEmail(emailAddr); err != nil {
		return err
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate magic link token: %w", err)
	}

	now := time.Now()
	link := &model.MagicLink{
		ID:        uuid.New().String(),
		Email:     emailAddr,
		Token:     token,
		ExpiresAt: now.Add(magicLinkTTL),
		CreatedAt: now,
	}
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return fmt.Errorf("failed to create magic link: %w", err)
	}

	linkURL := s.config.BaseURL + "/api/auth/magic-link/verify?token=" + token
	msg := email.Message{
		To:      emailAddr,
		Subject: "SmrtStudyへのログインリンク",
		HTML: fmt.Sprintf(
			`<p>以下のリンクからログインできます。リンクの有効期限は15分で、一度だけ使用できます。</p><p><a href="%s">ログインする</a></p><p>心当たりがない場合はこのメールを無視してください。</p>`,
			linkURL,
		),
		Text: "以下のURLからログインできます（有効期限15分・一回限り）: " + linkURL,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send magic link email: %w", err)
	}

	slog.Info("magic link sent")
	return nil
}

// VerifyMagicLink はマジックリンクのトークンを検証しセッションを発行する。
// トークンに紐づくメールアドレスが未登録の場合はアカウントを新規作成する。
// トークンは一度の使用で失効する。
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.NewInvalidTokenError()
	}

	link, err := s.linkRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find magic link: %w", err)
	}
	if link == nil || link.Used {
		return nil, model.NewInvalidTokenError()
	}
	if time.Now().After(link.ExpiresAt) {
		return nil, model.NewTokenExpiredError()
	}

	if err := s.linkRepo.MarkUsed(ctx, link.ID); err != nil {
		return nil, fmt.Errorf("failed to mark magic link used: %w", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, link.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if user == nil {
		now := time.Now()
		user = &model.User{
			ID:        uuid.New().String(),
			Email:     link.Email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new user created via magic link",
			slog.String("user_id", user.ID),
		)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("magic link verified",
		slog.String("user_id", user.ID),
	)
	return session, nil
}
