// Package storage はアップロードファイルの保存機能を提供する。
// プロフィール画像やPDFなどのバイナリをキーで管理し、公開URLに解決する。
package storage

import (
	"context"
	"io"
)

// ObjectStore はオブジェクト保存機能のインターフェースを定義する。
type ObjectStore interface {
	// Save はオブジェクトを保存する。同一キーへの保存は上書きになる。
	Save(ctx context.Context, key string, contentType string, r io.Reader) error
	// Open は保存済みオブジェクトを読み取り用に開く。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Resolve はキーを公開URLに解決する。存在確認は行わない。
	Resolve(key string) string
	// Delete はオブジェクトを削除する。存在しないキーはエラーにしない。
	Delete(ctx context.Context, key string) error
}
