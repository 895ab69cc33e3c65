package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
	"github.com/yuqie6/WrestleQuest/internal/gateway"
	"github.com/yuqie6/WrestleQuest/internal/observability"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/schema"
)

// DefaultLevelUpFlash 升阶标记的默认保留时长
const DefaultLevelUpFlash = 500 * time.Millisecond

// Options 服务参数
type Options struct {
	Engine       progression.Engine
	LevelUpFlash time.Duration
	Now          func() time.Time
	Metrics      *observability.Metrics
	WriteTimeout time.Duration // 定时清除标记时的写入超时
}

// Status 用户当前进度与写入状态
type Status struct {
	UserID     string
	Progress   progression.UserProgress
	Revision   int64
	WriteState WriteState
	LastError  string
}

// ApplyResult 记录活动的结果
type ApplyResult struct {
	Status
	Outcome progression.ApplyOutcome
}

// UndoResult 撤销的结果；Outcome.Applied=false 时未写入
type UndoResult struct {
	Status
	Outcome progression.UndoOutcome
}

// ProgressService 进度的唯一持有者：串行化同一用户的全部转换，并与网关快照对账
type ProgressService struct {
	gw      Gateway
	logs    ActivityLogRepository
	engine  progression.Engine
	now     func() time.Time
	metrics *observability.Metrics
	timeout time.Duration
	sched   *flagScheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewProgressService 创建服务；logs 可为 nil（不记录流水）
func NewProgressService(gw Gateway, logs ActivityLogRepository, opts Options) *ProgressService {
	if opts.Engine.Policy == nil || opts.Engine.Location == nil {
		opts.Engine = progression.NewEngine(opts.Engine.Policy, opts.Engine.Location)
	}
	if opts.LevelUpFlash <= 0 {
		opts.LevelUpFlash = DefaultLevelUpFlash
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ProgressService{
		gw:       gw,
		logs:     logs,
		engine:   opts.Engine,
		now:      opts.Now,
		metrics:  opts.Metrics,
		timeout:  opts.WriteTimeout,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	s.sched = newFlagScheduler(opts.LevelUpFlash, s.clearFlag)
	return s
}

// Engine 当前使用的转换器
func (s *ProgressService) Engine() progression.Engine { return s.engine }

// Get 读取用户进度；首次访问时不存在则写入默认值。
// 默认值写入失败时返回 Status 与 *PersistError。
func (s *ProgressService) Get(ctx context.Context, userID string) (Status, error) {
	sess, err := s.session(ctx, userID)
	if sess == nil {
		return Status{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.statusLocked(), err
}

// Apply 记录一次活动。持久化失败时同时返回结果与 *PersistError，内存状态不回滚。
func (s *ProgressService) Apply(ctx context.Context, userID string, in progression.ApplyInput) (*ApplyResult, error) {
	if !progression.ValidSkillIndex(in.SkillIndex) {
		s.metrics.Transition("apply", "invalid")
		return nil, fmt.Errorf("%w: %d", progression.ErrInvalidSkill, in.SkillIndex)
	}
	sess, err := s.session(ctx, userID)
	if sess == nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, out, err := s.engine.Apply(sess.state, in, s.now())
	if err != nil {
		s.metrics.Transition("apply", "invalid")
		return nil, err
	}
	sess.state = next
	rev, perr := s.persistLocked(ctx, sess)

	s.metrics.Applied(out.PointsEarned, out.StreakBonus, out.RankUps, out.LevelAfter-out.LevelBefore)
	if out.RankUps > 0 {
		s.sched.Schedule(userID, in.SkillIndex)
	}
	s.recordLog(ctx, schema.ActivityLog{
		UserID:       userID,
		Kind:         schema.ActivityKindApply,
		SkillIndex:   in.SkillIndex,
		SkillKey:     catalog.SkillKey(out.SkillName),
		Activity:     out.Activity,
		Duration:     out.Duration,
		PointsEarned: out.PointsEarned,
		StreakBonus:  out.StreakBonus,
		XPDelta:      out.XPGained,
		LevelAfter:   out.LevelAfter,
		Revision:     rev,
		Timestamp:    s.now().UnixMilli(),
	})
	sess.notifyLocked()

	slog.Debug("记录活动", "user_id", userID, "skill", out.SkillName, "activity", out.Activity,
		"points", out.PointsEarned, "bonus", out.StreakBonus, "rank_ups", out.RankUps, "level", out.LevelAfter)

	return &ApplyResult{Status: sess.statusLocked(), Outcome: out}, perr
}

// Undo 扣除一点。前置条件不满足时 Outcome.Applied=false 且不写入。
func (s *ProgressService) Undo(ctx context.Context, userID string, skillIndex int) (*UndoResult, error) {
	if !progression.ValidSkillIndex(skillIndex) {
		s.metrics.Transition("undo", "invalid")
		return nil, fmt.Errorf("%w: %d", progression.ErrInvalidSkill, skillIndex)
	}
	sess, err := s.session(ctx, userID)
	if sess == nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, out, err := s.engine.Undo(sess.state, skillIndex)
	if err != nil {
		s.metrics.Transition("undo", "invalid")
		return nil, err
	}
	if !out.Applied {
		s.metrics.Transition("undo", "not_applicable")
		return &UndoResult{Status: sess.statusLocked(), Outcome: out}, nil
	}
	sess.state = next
	rev, perr := s.persistLocked(ctx, sess)
	s.metrics.Transition("undo", "applied")

	s.recordLog(ctx, schema.ActivityLog{
		UserID:       userID,
		Kind:         schema.ActivityKindUndo,
		SkillIndex:   skillIndex,
		SkillKey:     catalog.SkillKey(out.SkillName),
		PointsEarned: -1,
		XPDelta:      -out.XPRemoved,
		LevelAfter:   out.LevelAfter,
		Revision:     rev,
		Timestamp:    s.now().UnixMilli(),
	})
	sess.notifyLocked()

	return &UndoResult{Status: sess.statusLocked(), Outcome: out}, perr
}

// UpdateProfile 修改名称/目标，不影响任何数值
func (s *ProgressService) UpdateProfile(ctx context.Context, userID string, in progression.ProfileInput) (Status, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	sess, err := s.session(ctx, userID)
	if sess == nil {
		return Status{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.state = progression.SetProfile(sess.state, in.Name, in.Quest)
	_, perr := s.persistLocked(ctx, sess)
	sess.notifyLocked()
	return sess.statusLocked(), perr
}

// Watch 订阅用户状态变化（本地转换与远端快照）。首个元素是当前状态，消费者跟不上时只保留最新。
func (s *ProgressService) Watch(ctx context.Context, userID string) (<-chan Status, error) {
	sess, err := s.session(ctx, userID)
	if sess == nil {
		return nil, err
	}
	ch := make(chan Status, 1)

	sess.mu.Lock()
	sess.listeners[ch] = struct{}{}
	ch <- sess.statusLocked()
	sess.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sess.done:
		}
		sess.mu.Lock()
		delete(sess.listeners, ch)
		close(ch)
		sess.mu.Unlock()
	}()
	return ch, nil
}

// PendingFlagClears 待执行的升阶标记清除数
func (s *ProgressService) PendingFlagClears() int { return s.sched.Pending() }

// OpenSessions 打开的会话数
func (s *ProgressService) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseSession 关闭某用户的会话（停止订阅与待执行的清除）
func (s *ProgressService) CloseSession(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return
	}
	<-sess.ready
	s.sched.CancelUser(userID)
	sess.cancel()
	s.metrics.SetSessions(n)
}

// Close 停止全部订阅与定时器
func (s *ProgressService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sched.Stop()
	s.cancel()
	s.wg.Wait()
}

// persistLocked 写入当前状态；调用方持有 sess.mu
func (s *ProgressService) persistLocked(ctx context.Context, sess *session) (int64, error) {
	payload, err := progression.EncodeDocument(sess.state)
	if err != nil {
		sess.writeState = WriteFailed
		sess.lastErr = err
		return 0, &PersistError{UserID: sess.userID, Err: err}
	}

	sess.writeState = WriteInFlight
	start := time.Now()
	rev, err := s.gw.Write(ctx, sess.userID, payload)
	s.metrics.Write(time.Since(start), err)
	if err != nil {
		sess.writeState = WriteFailed
		sess.lastErr = err
		slog.Warn("进度写入失败，保留内存状态", "user_id", sess.userID, "error", err)
		return 0, &PersistError{UserID: sess.userID, Err: err}
	}
	if rev > sess.revision {
		sess.revision = rev
	}
	sess.writeState = WriteAcked
	sess.lastErr = nil
	return rev, nil
}

// reconcile 处理网关快照：revision 更新时整体替换内存状态，否则视为回声忽略
func (s *ProgressService) reconcile(sess *session, snap gateway.Snapshot) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !snap.Found || snap.Revision <= sess.revision {
		s.metrics.Snapshot("ignored")
		return
	}
	next, err := progression.DecodeDocument(snap.Payload)
	if err != nil {
		s.metrics.Snapshot("rejected")
		slog.Warn("拒绝格式错误的进度快照", "user_id", sess.userID, "revision", snap.Revision, "error", err)
		return
	}
	sess.state = next
	sess.revision = snap.Revision
	s.metrics.Snapshot("adopted")
	slog.Debug("采用远端进度快照", "user_id", sess.userID, "revision", snap.Revision, "writer_id", snap.WriterID)

	for _, idx := range next.HasLevelingFlags() {
		s.sched.Schedule(sess.userID, idx)
	}
	sess.notifyLocked()
}

// clearFlag 定时清除升阶标记：重新读取当前状态，已清除则不写入
func (s *ProgressService) clearFlag(userID string, skillIndex int) {
	s.mu.Lock()
	sess := s.sessions[userID]
	s.mu.Unlock()
	if sess == nil {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, changed := progression.ClearLevelingUp(sess.state, skillIndex)
	if !changed {
		return
	}
	sess.state = next
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	_, _ = s.persistLocked(ctx, sess)
	s.metrics.FlagCleared()
	sess.notifyLocked()
}

func (s *ProgressService) recordLog(ctx context.Context, entry schema.ActivityLog) {
	if s.logs == nil {
		return
	}
	entry.RequestID = uuid.NewString()
	if err := s.logs.Insert(ctx, &entry); err != nil {
		slog.Warn("写入活动流水失败", "user_id", entry.UserID, "kind", entry.Kind, "error", err)
	}
}

// session 获取或打开用户会话。返回非 nil 会话时 err 只可能是默认值写入失败（*PersistError）。
func (s *ProgressService) session(ctx context.Context, userID string) (*session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id 不能为空")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if sess, ok := s.sessions[userID]; ok {
		s.mu.Unlock()
		select {
		case <-sess.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if sess.openErr != nil {
			return nil, sess.openErr
		}
		return sess, nil
	}
	sess := newSession(userID)
	s.sessions[userID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetSessions(n)

	initErr := s.open(ctx, sess)
	if sess.openErr != nil {
		s.mu.Lock()
		delete(s.sessions, userID)
		n = len(s.sessions)
		s.mu.Unlock()
		s.metrics.SetSessions(n)
		return nil, sess.openErr
	}
	return sess, initErr
}

// open 订阅网关并处理首个快照；不存在时写入默认值
func (s *ProgressService) open(ctx context.Context, sess *session) error {
	defer close(sess.ready)

	subCtx, cancel := context.WithCancel(s.ctx)
	sess.cancel = cancel
	ch, err := s.gw.Subscribe(subCtx, sess.userID)
	if err != nil {
		cancel()
		close(sess.done)
		sess.openErr = fmt.Errorf("订阅进度失败: %w", err)
		return nil
	}

	var first gateway.Snapshot
	select {
	case snap, ok := <-ch:
		if !ok {
			cancel()
			close(sess.done)
			sess.openErr = fmt.Errorf("订阅进度失败: 通道已关闭")
			return nil
		}
		first = snap
	case <-ctx.Done():
		cancel()
		close(sess.done)
		sess.openErr = ctx.Err()
		return nil
	}

	var initErr error
	sess.mu.Lock()
	if first.Found {
		p, err := progression.DecodeDocument(first.Payload)
		if err != nil {
			// 不采用也不覆盖远端文档，使用默认值直到出现合法快照或本地写入
			s.metrics.Snapshot("rejected")
			slog.Warn("已有进度文档格式错误，暂用默认值", "user_id", sess.userID, "revision", first.Revision, "error", err)
		} else {
			sess.state = p
			sess.revision = first.Revision
			s.metrics.Snapshot("adopted")
			for _, idx := range p.HasLevelingFlags() {
				s.sched.Schedule(sess.userID, idx)
			}
		}
	} else {
		_, initErr = s.persistLocked(ctx, sess)
		if initErr == nil {
			slog.Info("创建默认进度", "user_id", sess.userID, "revision", sess.revision)
		}
	}
	sess.mu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(sess.done)
		return initErr
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		defer close(sess.done)
		for snap := range ch {
			s.reconcile(sess, snap)
		}
	}()
	return initErr
}

// IsPersistError 判断是否为持久化失败（结果仍然有效）
func IsPersistError(err error) bool {
	return errors.Is(err, ErrPersist)
}
