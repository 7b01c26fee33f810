// Package expire は注文とセッションの定期失効ジョブを提供する。
// pendingのまま放置された注文を自動キャンセルして在庫を戻し、
// 期限切れセッションを削除する。いずれも冪等で、再実行しても安全。
package expire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/proditifgorut/alatacraft/internal/policy"
)

// OrderExpirer は期限切れpending注文の一括キャンセルを抽象化する。
type OrderExpirer interface {
	ExpireStalePending(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurger は期限切れセッションの削除を抽象化する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Recorder は失効ジョブの処理件数メトリクスを受け取る。
type Recorder interface {
	RecordOrdersExpired(count int64)
	RecordSessionsPurged(count int64)
}

// Job は注文失効とセッション削除を1サイクルで実行するバッチジョブ。
type Job struct {
	orders   OrderExpirer
	sessions SessionPurger
	recorder Recorder
	logger   *slog.Logger

	// ExpireAfter はpending注文を自動キャンセルするまでの猶予。
	ExpireAfter time.Duration
}

// NewJob は新しいJobを生成する。デフォルトの猶予は72時間。
// recorderはnilでもよい。
func NewJob(orders OrderExpirer, sessions SessionPurger, recorder Recorder, logger *slog.Logger) *Job {
	return &Job{
		orders:      orders,
		sessions:    sessions,
		recorder:    recorder,
		logger:      logger,
		ExpireAfter: 72 * time.Hour,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("失効ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("expire_after", j.ExpireAfter),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("失効サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("失効ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("失効サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は失効処理を1回実行する。
// 猶予を超えたpending注文をキャンセルし、期限切れセッションを削除する。
// どちらの件数もメトリクスに記録する。注文側が失敗した場合はそこで打ち切り、
// 次のサイクルで両方やり直す。
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()

	// リクエスト経路を通らないシステムアクターであることをコンテキストに載せる
	ctx = policy.DecisionContext(ctx, policy.Allow)

	cutoff := start.Add(-j.ExpireAfter)
	expired, err := j.orders.ExpireStalePending(ctx, cutoff)
	if err != nil {
		j.logger.Error("注文の自動キャンセルに失敗しました",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return fmt.Errorf("注文の自動キャンセルに失敗: %w", err)
	}
	if j.recorder != nil {
		j.recorder.RecordOrdersExpired(expired)
	}

	purged, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(purged)
	}

	duration := time.Since(start)
	j.logger.Info("失効サイクルが完了しました",
		slog.Int64("expired_orders", expired),
		slog.Int64("purged_sessions", purged),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
