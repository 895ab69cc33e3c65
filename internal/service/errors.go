package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPersist 持久化失败；内存状态已更新且不回滚
	ErrPersist = errors.New("进度持久化失败")
	// ErrInvalidProfile 名称/目标不合法
	ErrInvalidProfile = errors.New("资料不合法")
	// ErrClosed 服务已关闭
	ErrClosed = errors.New("进度服务已关闭")
)

// PersistError 写入失败的详细信息，errors.Is(err, ErrPersist) 为 true
type PersistError struct {
	UserID string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("用户 %s 进度持久化失败: %v", e.UserID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrPersist }

// WriteState 最近一次写入的状态
type WriteState int

const (
	WriteIdle WriteState = iota
	WriteInFlight
	WriteAcked
	WriteFailed
)

func (s WriteState) String() string {
	switch s {
	case WriteInFlight:
		return "in_flight"
	case WriteAcked:
		return "acked"
	case WriteFailed:
		return "failed"
	default:
		return "idle"
	}
}
