// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部ページから取得した文字列（リンクプレビューのタイトル）から
// HTMLマークアップを取り除き、プレーンテキストとして保存・表示できる形にする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はbluemondayのStrictPolicyで全てのタグを除去する。
// Policyはスレッドセーフなので1インスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去し、エスケープされた実体参照を元の文字に戻して前後の空白を削る。
// "Tom &amp; Jerry" は "Tom & Jerry" として保存される。
// 出力はHTMLとして解釈されない前提の文字列で、表示側でエスケープする。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
