// Package security は利用者入力の無害化と外部URLの検証を提供する。
//
// ContentSanitizerService はレビュー本文・商品説明・表示名などの
// 利用者入力をプレーンテキストへ無害化し、蓄積型XSSからストアの閲覧者を保護する。
// bluemondayの許可リストベースのポリシーで、タグは一切通過させない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は利用者入力の無害化機能のインターフェースを定義する。
// レビュー・商品・カテゴリ・プロフィールの保存前に使用される。
type ContentSanitizerService interface {
	// SanitizePlainText は入力からHTMLタグを全て除去したプレーンテキストを返す。
	// scriptとstyleは内容ごと取り除かれ、前後の空白は刈り込まれる。
	// 特殊文字はHTMLエンティティとしてエスケープされたまま保持される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizePlainText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに無害化処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、どんな入力もテキストだけに落ちる。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizePlainText は入力からHTMLタグを全て除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizePlainText(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
