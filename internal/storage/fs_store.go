package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore はローカルファイルシステムを使用したObjectStoreの実装。
// キーをベースディレクトリ配下の相対パスとして保存する。
type FSStore struct {
	baseDir   string
	publicURL string
}

// NewFSStore はFSStoreを生成する。ベースディレクトリがなければ作成する。
func NewFSStore(baseDir, publicURL string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FSStore{
		baseDir:   baseDir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// pathForKey はキーをベースディレクトリ配下のパスに解決する。
// ディレクトリトラバーサルを防ぐため、ベースディレクトリ外に出るキーを拒否する。
func (s *FSStore) pathForKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}

// Save はオブジェクトを保存する。同一キーへの保存は上書きになる。
func (s *FSStore) Save(ctx context.Context, key string, contentType string, r io.Reader) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	// 書き込み途中のファイルが読まれないよう一時ファイル経由でrenameする
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize object: %w", err)
	}

	return nil
}

// Open は保存済みオブジェクトを読み取り用に開く。
func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathForKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Resolve はキーを公開URLに解決する。
func (s *FSStore) Resolve(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// Delete はオブジェクトを削除する。存在しないキーはエラーにしない。
func (s *FSStore) Delete(ctx context.Context, key string) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ObjectStore = (*FSStore)(nil)
