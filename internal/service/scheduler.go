package service

import (
	"sync"
	"time"
)

type flagKey struct {
	userID     string
	skillIndex int
}

// flagScheduler 按 (用户, 技能) 延迟清除升阶标记；同一 key 重新调度会取消旧定时器
type flagScheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	fire   func(userID string, skillIndex int)
	timers map[flagKey]*time.Timer
	gen    map[flagKey]uint64
	closed bool
}

func newFlagScheduler(delay time.Duration, fire func(userID string, skillIndex int)) *flagScheduler {
	return &flagScheduler{
		delay:  delay,
		fire:   fire,
		timers: make(map[flagKey]*time.Timer),
		gen:    make(map[flagKey]uint64),
	}
}

func (f *flagScheduler) Schedule(userID string, skillIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	key := flagKey{userID: userID, skillIndex: skillIndex}
	if t, ok := f.timers[key]; ok {
		t.Stop()
	}
	f.gen[key]++
	gen := f.gen[key]
	f.timers[key] = time.AfterFunc(f.delay, func() {
		f.mu.Lock()
		// 已被重新调度或调度器已停止
		if f.closed || f.gen[key] != gen {
			f.mu.Unlock()
			return
		}
		delete(f.timers, key)
		f.mu.Unlock()
		f.fire(key.userID, key.skillIndex)
	})
}

// CancelUser 取消某用户的全部待执行清除
func (f *flagScheduler) CancelUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, t := range f.timers {
		if key.userID != userID {
			continue
		}
		t.Stop()
		f.gen[key]++
		delete(f.timers, key)
	}
}

func (f *flagScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *flagScheduler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for key, t := range f.timers {
		t.Stop()
		delete(f.timers, key)
	}
}
