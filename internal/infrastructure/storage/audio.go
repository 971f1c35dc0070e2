// Package storage 保存旁白音频
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port"
)

// LocalAudioStore 写入本地目录，引用为 BaseURL/<name>，由 HTTP 层静态服务
type LocalAudioStore struct {
	dir     string
	baseURL string
}

// NewLocalAudioStore 目录不存在时创建
func NewLocalAudioStore(cfg config.AudioStorageConfig) (*LocalAudioStore, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "data/audio"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "/media/audio"
	}
	return &LocalAudioStore{dir: dir, baseURL: base}, nil
}

var _ port.AudioStore = (*LocalAudioStore)(nil)

// Dir 音频根目录
func (s *LocalAudioStore) Dir() string { return s.dir }

// BaseURL 音频引用前缀
func (s *LocalAudioStore) BaseURL() string { return s.baseURL }

// Save 先写临时文件再重命名，读者不会看到半截文件
func (s *LocalAudioStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("commit audio: %w", err)
	}
	return path.Join(s.baseURL, name), nil
}

// Delete 不存在的文件视为已删除
func (s *LocalAudioStore) Delete(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, s.baseURL+"/") {
		return fmt.Errorf("audio ref %q is not managed by this store", ref)
	}
	name, err := cleanName(strings.TrimPrefix(ref, s.baseURL+"/"))
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete audio: %w", err)
	}
	return nil
}

func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid audio file name %q", name)
	}
	return name, nil
}
