package policy

import (
	"fmt"
	"strings"
)

// Statements は規則表から行レベルセキュリティのDDL一式を生成する。
// Goの評価器と同じ表を唯一の定義源とすることで、二重管理による食い違いを防ぐ。
//
// ポリシーは毎回DROPしてから作り直す。再定義は安価で、取り残された
// 古いポリシーのほうが危険だからだ。アプリ接続はテーブル所有者として
// RLSを透過するため（FORCEしない）、取得してから認可する流儀は壊れない。
func Statements() []string {
	var stmts []string
	for _, t := range Tables {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", t))
		for _, op := range Operations {
			name := policyName(t, op)
			stmts = append(stmts, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, t))

			rules := policyTable[t][op]
			if len(rules) == 0 {
				// 連鎖が空の操作はポリシーを作らない＝拒否。
				continue
			}
			stmts = append(stmts, createPolicy(name, t, op, predicate(t, rules)))
		}
	}
	return stmts
}

// policyName はリコンサイラが名前で突き合わせるポリシー名を返す。
func policyName(t Table, op Operation) string {
	return fmt.Sprintf("%s_%s_policy", t, op)
}

// ExpectedPolicyNames は規則表から生成されるべき全ポリシー名を返す。
// リコンサイラの検証段階が存在確認に使う。
func ExpectedPolicyNames() []string {
	var names []string
	for _, t := range Tables {
		for _, op := range Operations {
			if len(policyTable[t][op]) == 0 {
				continue
			}
			names = append(names, policyName(t, op))
		}
	}
	return names
}

// predicate は連鎖内の規則の述語をORで結合する。
func predicate(t Table, rules []rule) string {
	parts := make([]string, 0, len(rules))
	for _, rl := range rules {
		parts = append(parts, rl.predicate(t))
	}
	return strings.Join(parts, " OR ")
}

func createPolicy(name string, t Table, op Operation, pred string) string {
	switch op {
	case OpCreate:
		return fmt.Sprintf("CREATE POLICY %s ON %s FOR INSERT WITH CHECK (%s)", name, t, pred)
	case OpRead:
		return fmt.Sprintf("CREATE POLICY %s ON %s FOR SELECT USING (%s)", name, t, pred)
	case OpUpdate:
		return fmt.Sprintf("CREATE POLICY %s ON %s FOR UPDATE USING (%s) WITH CHECK (%s)", name, t, pred, pred)
	case OpDelete:
		return fmt.Sprintf("CREATE POLICY %s ON %s FOR DELETE USING (%s)", name, t, pred)
	}
	return ""
}
