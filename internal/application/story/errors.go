package story

import "errors"

var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("story job not found")
	// ErrNotReady 故事尚未完成，不能重新生成旁白
	ErrNotReady = errors.New("story is not complete")
	// ErrDispatch 任务已创建但投递到队列失败，任务已记为 failed/dispatch
	ErrDispatch = errors.New("job dispatch failed")
)
