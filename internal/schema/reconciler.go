package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/proditifgorut/alatacraft/internal/database"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
)

// StepRecorder はリコンサイル各段階の結果と所要時間を計測する。
type StepRecorder interface {
	RecordReconcileStep(step, result string)
	ObserveReconcileDuration(step string, seconds float64)
}

// Reconciler はストアの構造状態を現在の目標形状へ収束させる。
// 全段階が自己検査型で、2回連続で実行すると2回目は厳密な無操作になる。
// いずれかの段階が失敗した場合は全体を中断する。部分的な収束を残さない。
type Reconciler struct {
	db               *sql.DB
	databaseURL      string
	allowDestructive bool
	metrics          StepRecorder
	logger           *slog.Logger

	// 台帳適用はテストで差し替える
	runMigrations func(databaseURL string) error
}

// NewReconciler はReconcilerを生成する。
// allowDestructiveは型不一致列の破壊的な作り直しを許可する運用者の明示的な同意。
func NewReconciler(db *sql.DB, databaseURL string, allowDestructive bool, metrics StepRecorder, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		db:               db,
		databaseURL:      databaseURL,
		allowDestructive: allowDestructive,
		metrics:          metrics,
		logger:           logger,
		runMigrations:    database.RunMigrations,
	}
}

// Run はリコンサイルを実行する。段階は順に、
// 型検査 → 破壊的修復 → 台帳適用 → ポリシー再適用 → 検証。
func (r *Reconciler) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"inspect_types", r.stepInspectAndRepair},
		{"apply_ledger", r.stepApplyLedger},
		{"apply_policies", r.stepApplyPolicies},
		{"verify", r.stepVerify},
	}

	for _, step := range steps {
		start := time.Now()
		r.logger.Info("リコンサイル段階を開始します", "step", step.name)

		err := step.fn(ctx)
		elapsed := time.Since(start)
		if r.metrics != nil {
			r.metrics.ObserveReconcileDuration(step.name, elapsed.Seconds())
		}

		if err != nil {
			r.record(step.name, "error")
			r.logger.Error("リコンサイル段階が失敗しました", "step", step.name, "error", err)
			return fmt.Errorf("リコンサイルを中断しました (step=%s): %w", step.name, err)
		}

		r.record(step.name, "ok")
		r.logger.Info("リコンサイル段階が完了しました", "step", step.name, "elapsed_ms", elapsed.Milliseconds())
	}

	r.logger.Info("リコンサイルが完了しました")
	return nil
}

// stepInspectAndRepair は目録上の列型を検査し、不一致があれば作り直す。
// 作り直しはデータ損失を伴うため、運用者の明示的な同意なしには実行せず
// SchemaIntegrityViolationで中断する。
func (r *Reconciler) stepInspectAndRepair(ctx context.Context) error {
	mismatches, err := inspectDrift(ctx, r.db)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		r.logger.Info("列型の不一致はありません")
		return nil
	}

	for _, m := range mismatches {
		r.logger.Warn("列型の不一致を検出しました",
			"table", m.Table,
			"column", m.Column,
			"current_type", m.CurrentType,
			"want_type", m.WantType,
		)
	}

	if !r.allowDestructive {
		return model.NewSchemaIntegrityError(
			fmt.Sprintf("列型の不一致が%d件あります（例: %s）。修復はデータ損失を伴うため、RECONCILE_ALLOW_DESTRUCTIVE=true による明示的な同意が必要です", len(mismatches), mismatches[0]))
	}

	expanded := expandLockstep(mismatches)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range repairStatements(expanded) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("修復DDLの実行に失敗しました (%s): %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Warn("列型の破壊的修復を実行しました", "columns", len(expanded))
	return nil
}

// stepApplyLedger は埋め込み済みの台帳（順序付きマイグレーション列）を適用する。
// 台帳の各段階は存在検査付きDDLで書かれており、任意の過去形状から収束する。
func (r *Reconciler) stepApplyLedger(ctx context.Context) error {
	if err := r.runMigrations(r.databaseURL); err != nil {
		return err
	}
	return nil
}

// stepApplyPolicies は認可規則表から生成した行レベルセキュリティポリシーを
// 無条件で再適用する。古いポリシーの取り残しを防ぐため、存在の有無に
// かかわらず毎回作り直す。
func (r *Reconciler) stepApplyPolicies(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := policy.Statements()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ポリシーDDLの実行に失敗しました (%s): %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("ポリシーを再適用しました", "statements", len(stmts))
	return nil
}

// stepVerify は収束後の状態を検証する。列型の不一致が残っていないこと、
// 契約済みの制約名とポリシー名が全て存在することを確認し、
// 欠けがあればSchemaIntegrityViolationで中断する。
func (r *Reconciler) stepVerify(ctx context.Context) error {
	mismatches, err := inspectDrift(ctx, r.db)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return model.NewSchemaIntegrityError(
			fmt.Sprintf("収束後も列型の不一致が残っています: %s", mismatches[0]))
	}

	if err := verifyConstraints(ctx, r.db); err != nil {
		return err
	}
	if err := verifyPolicies(ctx, r.db); err != nil {
		return err
	}

	return nil
}

func (r *Reconciler) record(step, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordReconcileStep(step, result)
}
