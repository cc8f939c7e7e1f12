// Package cleanup は期限切れ認証データの自動削除ジョブを提供する。
// 失効したセッションと、使用済みまたは期限切れのマジックリンク・
// ワンタイムコード・パスワード再設定トークンを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れ認証データの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 失効後の保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は7日。失効直後のレコードは調査用に短期間残す。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 7,
	}
}

// cleanupTargets は削除対象テーブルと条件の組。
// expires_atが保持期間より前のレコードを削除する。
var cleanupTargets = []struct {
	table string
	query string
}{
	{"sessions", `DELETE FROM sessions WHERE expires_at < now() - $1::interval`},
	{"magic_links", `DELETE FROM magic_links WHERE used = true OR expires_at < now() - $1::interval`},
	{"otp_challenges", `DELETE FROM otp_challenges WHERE used = true OR expires_at < now() - $1::interval`},
	{"password_resets", `DELETE FROM password_resets WHERE used = true OR expires_at < now() - $1::interval`},
}

// Run は失効した認証データを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// 途中のテーブルで失敗した場合はエラーを返すが、削除済み分はロールバックしない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	var total int64
	for _, target := range cleanupTargets {
		result, err := j.db.ExecContext(ctx, target.query, interval)
		if err != nil {
			j.logger.Error("クリーンアップジョブの実行に失敗しました",
				slog.String("table", target.table),
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
			)
			return fmt.Errorf("%sのクリーンアップに失敗: %w", target.table, err)
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			j.logger.Error("削除件数の取得に失敗しました",
				slog.String("table", target.table),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		}

		j.logger.Info("期限切れレコードを削除しました",
			slog.String("table", target.table),
			slog.Int64("deleted_count", deleted),
		)
		total += deleted
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
