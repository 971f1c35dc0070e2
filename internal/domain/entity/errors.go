package entity

import "fmt"

// ValidationError 客户端输入无效，提交时同步返回，不创建任务
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// UnsupportedInputKindError 输入类型不在 scenario/image/characters 之内
type UnsupportedInputKindError struct {
	Kind string
}

func (e *UnsupportedInputKindError) Error() string {
	return fmt.Sprintf("unsupported input kind %q", e.Kind)
}

// TemplateError 没有可用模板
type TemplateError struct {
	Language  string
	InputKind InputKind
	Reason    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error (%s/%s): %s", e.InputKind, e.Language, e.Reason)
}

// Collaborator 外部协作方
type Collaborator string

const (
	CollaboratorGeneration Collaborator = "generation"
	CollaboratorNarration  Collaborator = "narration"
	CollaboratorVision     Collaborator = "vision"
)

// FailureKind 协作方对应的失败类型
func (c Collaborator) FailureKind() FailureKind {
	switch c {
	case CollaboratorNarration:
		return FailureNarrationUpstream
	case CollaboratorVision:
		return FailureVisionUpstream
	default:
		return FailureGenerationUpstream
	}
}

// UpstreamError 协作方调用失败或超时
type UpstreamError struct {
	Collaborator Collaborator
	Timeout      bool
	Err          error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s collaborator timed out: %v", e.Collaborator, e.Err)
	}
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConsistencyError 非法的阶段迁移，属于内部缺陷
type ConsistencyError struct {
	JobID string
	Kind  JobKind
	From  Stage
	To    Stage
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("illegal %s job transition %s -> %s (job %s)", e.Kind, e.From, e.To, e.JobID)
}
