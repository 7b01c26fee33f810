package schema

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
)

// --- モック ---

type mockStepRecorder struct {
	steps     map[string]string
	durations map[string]float64
}

func (m *mockStepRecorder) RecordReconcileStep(step, result string) {
	if m.steps == nil {
		m.steps = map[string]string{}
	}
	m.steps[step] = result
}

func (m *mockStepRecorder) ObserveReconcileDuration(step string, seconds float64) {
	if m.durations == nil {
		m.durations = map[string]float64{}
	}
	m.durations[step] = seconds
}

func escape(query string) string {
	return regexp.QuoteMeta(query)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const columnTypeQuery = `SELECT data_type FROM information_schema.columns`

// expectDriftInspection は目録上の全列がuuidで存在する状態の検査応答を積む。
func expectDriftInspection(mock sqlmock.Sqlmock) {
	for range driftTargets {
		mock.ExpectQuery(columnTypeQuery).
			WillReturnRows(sqlmock.NewRows([]string{"data_type"}).AddRow("uuid"))
	}
}

// expectConstraintVerification は契約済み制約が全件揃っている応答を積む。
func expectConstraintVerification(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows([]string{"conname"})
	for _, name := range requiredConstraints {
		rows.AddRow(name)
	}
	mock.ExpectQuery("SELECT conname FROM pg_constraint").WillReturnRows(rows)
}

// expectPolicyVerification は規則表由来の全ポリシーが揃っている応答を積む。
func expectPolicyVerification(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows([]string{"policyname"})
	for _, name := range policy.ExpectedPolicyNames() {
		rows.AddRow(name)
	}
	mock.ExpectQuery("SELECT policyname FROM pg_policies").WillReturnRows(rows)
}

// expectPolicyApplication はポリシー再適用のトランザクションを積む。
func expectPolicyApplication(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	for range policy.Statements() {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
}

// --- テスト ---

// TestReconciler_Run_ConvergedStore は収束済みストアへの実行が
// 無操作で成功することを検証する。
func TestReconciler_Run_ConvergedStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	expectDriftInspection(mock)
	// 台帳適用はスタブが受ける
	expectPolicyApplication(mock)
	// 検証段階
	expectDriftInspection(mock)
	expectConstraintVerification(mock)
	expectPolicyVerification(mock)

	ledgerRuns := 0
	recorder := &mockStepRecorder{}
	r := NewReconciler(db, "postgres://localhost/test", false, recorder, discardLogger())
	r.runMigrations = func(databaseURL string) error {
		ledgerRuns++
		return nil
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if ledgerRuns != 1 {
		t.Errorf("ledger runs = %d, want 1", ledgerRuns)
	}
	for _, step := range []string{"inspect_types", "apply_ledger", "apply_policies", "verify"} {
		if recorder.steps[step] != "ok" {
			t.Errorf("step %s recorded %q, want ok", step, recorder.steps[step])
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestReconciler_Run_MismatchWithoutOptIn は型不一致の検出時に
// 破壊的修復の同意なしではSchemaIntegrityViolationで中断することを検証する。
func TestReconciler_Run_MismatchWithoutOptIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	// 先頭の products.id が integer で見つかり、残りはuuid
	mock.ExpectQuery(columnTypeQuery).
		WillReturnRows(sqlmock.NewRows([]string{"data_type"}).AddRow("integer"))
	for i := 1; i < len(driftTargets); i++ {
		mock.ExpectQuery(columnTypeQuery).
			WillReturnRows(sqlmock.NewRows([]string{"data_type"}).AddRow("uuid"))
	}

	ledgerRuns := 0
	recorder := &mockStepRecorder{}
	r := NewReconciler(db, "postgres://localhost/test", false, recorder, discardLogger())
	r.runMigrations = func(databaseURL string) error {
		ledgerRuns++
		return nil
	}

	err = r.Run(context.Background())
	if !model.IsSchemaViolation(err) {
		t.Fatalf("expected SchemaIntegrityViolation, got %v", err)
	}
	// 中断後の段階は一切実行されない
	if ledgerRuns != 0 {
		t.Errorf("ledger runs = %d, want 0 after abort", ledgerRuns)
	}
	if recorder.steps["inspect_types"] != "error" {
		t.Errorf("inspect_types recorded %q, want error", recorder.steps["inspect_types"])
	}
	if _, ran := recorder.steps["apply_ledger"]; ran {
		t.Error("apply_ledger must not run after abort")
	}
}

// TestReconciler_Run_DestructiveRepair は同意ありの修復で依存外部キーの削除と
// 列の作り直しが単一トランザクションで行われることを検証する。
func TestReconciler_Run_DestructiveRepair(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	// orders.user_id だけが text でドリフトしている
	for _, target := range driftTargets {
		dataType := "uuid"
		if target.table == "orders" && target.column == "user_id" {
			dataType = "text"
		}
		mock.ExpectQuery(columnTypeQuery).
			WillReturnRows(sqlmock.NewRows([]string{"data_type"}).AddRow(dataType))
	}

	mock.ExpectBegin()
	mock.ExpectExec(escape("ALTER TABLE orders DROP CONSTRAINT IF EXISTS orders_user_id_fkey")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(escape("ALTER TABLE orders DROP COLUMN IF EXISTS user_id")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(escape("ALTER TABLE orders ADD COLUMN user_id uuid")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(escape("DELETE FROM orders WHERE user_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	expectPolicyApplication(mock)
	expectDriftInspection(mock)
	expectConstraintVerification(mock)
	expectPolicyVerification(mock)

	r := NewReconciler(db, "postgres://localhost/test", true, &mockStepRecorder{}, discardLogger())
	r.runMigrations = func(databaseURL string) error { return nil }

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestReconciler_Run_VerifyMissingConstraint は検証段階で制約の欠落を
// SchemaIntegrityViolationとして報告することを検証する。
func TestReconciler_Run_VerifyMissingConstraint(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	expectDriftInspection(mock)
	expectPolicyApplication(mock)
	expectDriftInspection(mock)

	// products_name_key だけが欠けている
	rows := sqlmock.NewRows([]string{"conname"})
	for _, name := range requiredConstraints {
		if name == "products_name_key" {
			continue
		}
		rows.AddRow(name)
	}
	mock.ExpectQuery("SELECT conname FROM pg_constraint").WillReturnRows(rows)

	recorder := &mockStepRecorder{}
	r := NewReconciler(db, "postgres://localhost/test", false, recorder, discardLogger())
	r.runMigrations = func(databaseURL string) error { return nil }

	err = r.Run(context.Background())
	if !model.IsSchemaViolation(err) {
		t.Fatalf("expected SchemaIntegrityViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), "products_name_key") {
		t.Errorf("error should name the missing constraint: %v", err)
	}
	if recorder.steps["verify"] != "error" {
		t.Errorf("verify recorded %q, want error", recorder.steps["verify"])
	}
}

// TestReconciler_Run_LedgerFailureAborts は台帳適用の失敗で全体が中断し、
// 後続のポリシー再適用が走らないことを検証する。
func TestReconciler_Run_LedgerFailureAborts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	expectDriftInspection(mock)

	recorder := &mockStepRecorder{}
	r := NewReconciler(db, "postgres://localhost/test", false, recorder, discardLogger())
	r.runMigrations = func(databaseURL string) error {
		return &testLedgerError{}
	}

	err = r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if recorder.steps["apply_ledger"] != "error" {
		t.Errorf("apply_ledger recorded %q, want error", recorder.steps["apply_ledger"])
	}
	if _, ran := recorder.steps["apply_policies"]; ran {
		t.Error("apply_policies must not run after ledger failure")
	}
}

type testLedgerError struct{}

func (e *testLedgerError) Error() string { return "dirty migration state" }

// TestExpandLockstep は主キーの不一致が参照側の列を修復対象へ引き込むことを検証する。
func TestExpandLockstep(t *testing.T) {
	mismatches := []Mismatch{
		{Table: "products", Column: "id", CurrentType: "integer", WantType: "uuid"},
	}

	expanded := expandLockstep(mismatches)

	keys := map[string]bool{}
	for _, m := range expanded {
		keys[m.Table+"."+m.Column] = true
	}
	for _, want := range []string{"products.id", "order_items.product_id", "reviews.product_id"} {
		if !keys[want] {
			t.Errorf("expanded set should include %s, got %v", want, keys)
		}
	}
	if keys["orders.id"] {
		t.Error("orders.id should not be pulled in by products.id drift")
	}
}

// TestRepairStatements_Order は修復DDLが依存制約の削除 → 列の作り直し →
// 掃除の順で生成されることを検証する。
func TestRepairStatements_Order(t *testing.T) {
	mismatches := expandLockstep([]Mismatch{
		{Table: "orders", Column: "id", CurrentType: "integer", WantType: "uuid"},
	})

	stmts := repairStatements(mismatches)
	joined := strings.Join(stmts, "\n")

	dropFK := strings.Index(joined, "DROP CONSTRAINT IF EXISTS order_items_order_id_fkey")
	dropCol := strings.Index(joined, "ALTER TABLE orders DROP COLUMN IF EXISTS id")
	addPK := strings.Index(joined, "ALTER TABLE orders ADD COLUMN id uuid PRIMARY KEY DEFAULT gen_random_uuid()")
	cleanup := strings.Index(joined, "DELETE FROM order_items WHERE order_id IS NULL")

	if dropFK == -1 || dropCol == -1 || addPK == -1 || cleanup == -1 {
		t.Fatalf("missing expected statements:\n%s", joined)
	}
	if !(dropFK < dropCol && dropCol < addPK && addPK < cleanup) {
		t.Errorf("statement order is wrong:\n%s", joined)
	}
}
