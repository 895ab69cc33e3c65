package service

import (
	"context"
	"sync"

	"github.com/yuqie6/WrestleQuest/internal/progression"
)

// session 单个用户的进度持有者；mu 串行化该用户的全部转换与对账
type session struct {
	userID string

	ready   chan struct{} // 首个快照处理完毕后关闭
	done    chan struct{} // 订阅结束后关闭
	openErr error
	cancel  context.CancelFunc

	mu         sync.Mutex
	state      progression.UserProgress
	revision   int64 // 已知的最新 revision（本地写入或采用的快照）
	writeState WriteState
	lastErr    error
	listeners  map[chan Status]struct{}
}

func newSession(userID string) *session {
	return &session{
		userID:    userID,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		state:     progression.NewUserProgress(),
		listeners: make(map[chan Status]struct{}),
	}
}

func (s *session) statusLocked() Status {
	st := Status{
		UserID:     s.userID,
		Progress:   s.state.Clone(),
		Revision:   s.revision,
		WriteState: s.writeState,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// notifyLocked 向监听者推送最新状态，满则替换旧值
func (s *session) notifyLocked() {
	if len(s.listeners) == 0 {
		return
	}
	st := s.statusLocked()
	for ch := range s.listeners {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
