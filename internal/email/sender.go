// Package email はトランザクションメールの送信機能を提供する。
// マジックリンク、ワンタイムコード、パスワード再設定などの認証系メールを扱う。
package email

import "context"

// Message は送信するメール1通を表す。
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender はメール送信機能のインターフェースを定義する。
type Sender interface {
	// Send はメールを1通送信する。
	Send(ctx context.Context, msg Message) error
}
