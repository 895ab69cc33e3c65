package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yuqie6/WrestleQuest/internal/gateway"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/schema"
)

type fakeGateway struct {
	mu        sync.Mutex
	docs      map[string]gateway.Snapshot
	subs      map[string][]chan gateway.Snapshot
	failWrite bool
	writes    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		docs: make(map[string]gateway.Snapshot),
		subs: make(map[string][]chan gateway.Snapshot),
	}
}

func (g *fakeGateway) Subscribe(ctx context.Context, userID string) (<-chan gateway.Snapshot, error) {
	ch := make(chan gateway.Snapshot, 16)
	g.mu.Lock()
	snap, ok := g.docs[userID]
	if !ok {
		snap = gateway.Snapshot{UserID: userID}
	}
	ch <- snap
	g.subs[userID] = append(g.subs[userID], ch)
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		defer g.mu.Unlock()
		list := g.subs[userID]
		for i, c := range list {
			if c == ch {
				g.subs[userID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (g *fakeGateway) Write(ctx context.Context, userID string, payload []byte) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWrite {
		return 0, errors.New("disk full")
	}
	g.writes++
	rev := g.docs[userID].Revision + 1
	snap := gateway.Snapshot{UserID: userID, Found: true, Revision: rev, WriterID: "self", Payload: append([]byte(nil), payload...)}
	g.docs[userID] = snap
	g.pushLocked(snap)
	return rev, nil
}

// external 模拟其他写入方
func (g *fakeGateway) external(snap gateway.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[snap.UserID] = snap
	g.pushLocked(snap)
}

func (g *fakeGateway) pushLocked(snap gateway.Snapshot) {
	for _, ch := range g.subs[snap.UserID] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (g *fakeGateway) setFail(v bool) {
	g.mu.Lock()
	g.failWrite = v
	g.mu.Unlock()
}

func (g *fakeGateway) writeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes
}

func (g *fakeGateway) stored(t *testing.T, userID string) progression.UserProgress {
	t.Helper()
	g.mu.Lock()
	snap := g.docs[userID]
	g.mu.Unlock()
	p, err := progression.DecodeDocument(snap.Payload)
	if err != nil {
		t.Fatalf("stored doc invalid: %v", err)
	}
	return p
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []schema.ActivityLog
	fail    bool
}

func (r *fakeLogRepo) Insert(ctx context.Context, entry *schema.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("log table locked")
	}
	r.entries = append(r.entries, *entry)
	return nil
}
func (r *fakeLogRepo) ListRecent(ctx context.Context, userID string, limit int) ([]schema.ActivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.ActivityLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}
func (r *fakeLogRepo) ListByTimeRange(ctx context.Context, userID string, startMs, endMs int64) ([]schema.ActivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.ActivityLog
	for _, e := range r.entries {
		if e.UserID == userID && e.Timestamp >= startMs && e.Timestamp <= endMs {
			out = append(out, e)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, gw Gateway, logs ActivityLogRepository, flash time.Duration) *ProgressService {
	t.Helper()
	svc := NewProgressService(gw, logs, Options{
		Engine:       progression.NewEngine(progression.RecomputeLevelPolicy{}, time.UTC),
		LevelUpFlash: flash,
		Now:          func() time.Time { return fixedNow },
	})
	t.Cleanup(svc.Close)
	return svc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestGetCreatesDefaultsOnFirstAccess(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)

	st, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if gw.writeCount() != 1 {
		t.Fatalf("writes=%d, want create-on-read write", gw.writeCount())
	}
	if st.Revision != 1 || st.WriteState != WriteAcked {
		t.Fatalf("status=%+v", st)
	}
	if st.Progress.Level != 1 || st.Progress.Skills[0].Name != "Technique" {
		t.Fatalf("progress=%+v", st.Progress)
	}

	// 再次访问不再写入
	if _, err := svc.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if gw.writeCount() != 1 {
		t.Fatalf("writes=%d, want 1", gw.writeCount())
	}
}

func TestGetAdoptsExistingDocument(t *testing.T) {
	gw := newFakeGateway()
	p := progression.NewUserProgress()
	p.XP = 1200
	p.Level = 3
	payload, _ := progression.EncodeDocument(p)
	gw.external(gateway.Snapshot{UserID: "u1", Found: true, Revision: 7, Payload: payload})

	svc := newTestService(t, gw, nil, time.Hour)
	st, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if st.Progress.XP != 1200 || st.Revision != 7 {
		t.Fatalf("status=%+v", st)
	}
	if gw.writeCount() != 0 {
		t.Fatalf("writes=%d, want 0", gw.writeCount())
	}
}

func TestCreateOnReadFailureIsSurfaced(t *testing.T) {
	gw := newFakeGateway()
	gw.setFail(true)
	svc := newTestService(t, gw, nil, time.Hour)

	st, err := svc.Get(context.Background(), "u1")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("err=%v, want ErrPersist", err)
	}
	if st.WriteState != WriteFailed || st.Progress.Level != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestApplyPersistsAndLogs(t *testing.T) {
	gw := newFakeGateway()
	logs := &fakeLogRepo{}
	svc := newTestService(t, gw, logs, time.Hour)
	ctx := context.Background()

	res, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 4, Activity: "Visualization", Duration: 30})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if res.Outcome.PointsEarned != 3 || res.Progress.Skills[4].Points != 3 || res.Progress.XP != 150 {
		t.Fatalf("res=%+v", res)
	}
	if res.WriteState != WriteAcked || res.Revision != 2 {
		t.Fatalf("write state=%v rev=%d", res.WriteState, res.Revision)
	}
	stored := gw.stored(t, "u1")
	if stored.XP != 150 || stored.Skills[4].TotalPoints != 3 {
		t.Fatalf("stored=%+v", stored)
	}

	hist, err := svc.History(ctx, "u1", 10)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history=%v err=%v", hist, err)
	}
	if hist[0].Kind != schema.ActivityKindApply || hist[0].SkillKey != "mindset" || hist[0].Revision != 2 || hist[0].RequestID == "" {
		t.Fatalf("entry=%+v", hist[0])
	}

	day, err := svc.HistoryOn(ctx, "u1", "2026-06-01")
	if err != nil || len(day) != 1 {
		t.Fatalf("day=%v err=%v", day, err)
	}
}

func TestApplyLogFailureDoesNotFailTransition(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, &fakeLogRepo{fail: true}, time.Hour)
	if _, err := svc.Apply(context.Background(), "u1", progression.ApplyInput{SkillIndex: 0, Activity: "Custom"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
}

func TestApplyInvalidSkillNoWrite(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)

	_, err := svc.Apply(context.Background(), "u1", progression.ApplyInput{SkillIndex: 9, Activity: "Custom"})
	if !errors.Is(err, progression.ErrInvalidSkill) {
		t.Fatalf("err=%v, want ErrInvalidSkill", err)
	}
	if gw.writeCount() != 0 {
		t.Fatalf("writes=%d, want 0", gw.writeCount())
	}
}

func TestPersistFailureKeepsOptimisticState(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	gw.setFail(true)
	res, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 1, Activity: "Custom"})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("err=%v, want ErrPersist", err)
	}
	var pe *PersistError
	if !errors.As(err, &pe) || pe.UserID != "u1" {
		t.Fatalf("err=%#v", err)
	}
	if res == nil || res.Progress.Skills[1].Points != 1 || res.WriteState != WriteFailed {
		t.Fatalf("res=%+v", res)
	}

	st, _ := svc.Get(ctx, "u1")
	if st.Progress.Skills[1].Points != 1 || !strings.Contains(st.LastError, "disk full") {
		t.Fatalf("status=%+v", st)
	}

	// 恢复后下一次写入带上全部状态
	gw.setFail(false)
	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 1, Activity: "Custom"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if got := gw.stored(t, "u1").Skills[1].Points; got != 2 {
		t.Fatalf("stored points=%d, want 2", got)
	}
}

func TestUndoNotApplicable(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()

	res, err := svc.Undo(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Undo error: %v", err)
	}
	if res.Outcome.Applied {
		t.Fatalf("undo at floor should not apply")
	}
	if gw.writeCount() != 1 {
		t.Fatalf("writes=%d, want only the create-on-read write", gw.writeCount())
	}
}

func TestUndoAfterApply(t *testing.T) {
	gw := newFakeGateway()
	logs := &fakeLogRepo{}
	svc := newTestService(t, gw, logs, time.Hour)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 2, Activity: "Run 2 miles"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	res, err := svc.Undo(ctx, "u1", 2)
	if err != nil || !res.Outcome.Applied {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if res.Progress.Skills[2].TotalPoints != 0 || res.Progress.XP != 0 {
		t.Fatalf("progress=%+v", res.Progress)
	}
	if len(logs.entries) != 2 || logs.entries[1].Kind != schema.ActivityKindUndo || logs.entries[1].XPDelta != -50 {
		t.Fatalf("logs=%+v", logs.entries)
	}
}

func TestReconcileAdoptsNewerSnapshot(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	remote := progression.NewUserProgress()
	remote.Name = "remote"
	remote.XP = 2000
	remote.Level = 5
	payload, _ := progression.EncodeDocument(remote)
	gw.external(gateway.Snapshot{UserID: "u1", Found: true, Revision: 10, WriterID: "other", Payload: payload})

	waitFor(t, "remote snapshot", func() bool {
		st, _ := svc.Get(ctx, "u1")
		return st.Progress.Name == "remote"
	})
	st, _ := svc.Get(ctx, "u1")
	if st.Revision != 10 || st.Progress.XP != 2000 {
		t.Fatalf("status=%+v", st)
	}

	// 下一次本地写入基于远端状态
	res, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 0, Activity: "Custom"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if res.Progress.XP != 2050 || res.Revision != 11 {
		t.Fatalf("res=%+v", res.Status)
	}
}

func TestReconcileIgnoresEchoAndStale(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 0, Activity: "Custom"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	sess, _ := svc.session(ctx, "u1")

	stale := progression.NewUserProgress()
	stale.Name = "stale"
	payload, _ := progression.EncodeDocument(stale)
	svc.reconcile(sess, gateway.Snapshot{UserID: "u1", Found: true, Revision: 1, Payload: payload})
	svc.reconcile(sess, gateway.Snapshot{UserID: "u1", Found: true, Revision: 2, Payload: payload})

	st, _ := svc.Get(ctx, "u1")
	if st.Progress.Name == "stale" || st.Progress.Skills[0].Points != 1 || st.Revision != 2 {
		t.Fatalf("status=%+v", st)
	}
}

func TestReconcileRejectsMalformed(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()
	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 3, Activity: "Sprint intervals"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	sess, _ := svc.session(ctx, "u1")

	svc.reconcile(sess, gateway.Snapshot{UserID: "u1", Found: true, Revision: 99, Payload: []byte(`{"xp": 5}`)})

	st, _ := svc.Get(ctx, "u1")
	if st.Revision != 2 || st.Progress.Skills[3].Points != 1 {
		t.Fatalf("malformed snapshot adopted: %+v", st)
	}

	// 之后的合法快照仍会被采用
	good := progression.NewUserProgress()
	good.Quest = "recovered"
	payload, _ := progression.EncodeDocument(good)
	svc.reconcile(sess, gateway.Snapshot{UserID: "u1", Found: true, Revision: 100, Payload: payload})
	st, _ = svc.Get(ctx, "u1")
	if st.Progress.Quest != "recovered" || st.Revision != 100 {
		t.Fatalf("status=%+v", st)
	}
}

func TestLevelingFlagClearedAfterDelay(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, 20*time.Millisecond)
	ctx := context.Background()

	res, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 1, Activity: "Strength training", Duration: 300})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if !res.Progress.Skills[1].IsLevelingUp || res.Progress.Skills[1].Rank != 2 {
		t.Fatalf("skill=%+v", res.Progress.Skills[1])
	}

	waitFor(t, "flag clear", func() bool {
		st, _ := svc.Get(ctx, "u1")
		return !st.Progress.Skills[1].IsLevelingUp
	})
	waitFor(t, "flag clear persisted", func() bool {
		return !gw.stored(t, "u1").Skills[1].IsLevelingUp
	})
	st, _ := svc.Get(ctx, "u1")
	if st.Progress.Skills[1].Rank != 2 || st.Progress.XP != 250 {
		t.Fatalf("numeric state changed by flag clear: %+v", st.Progress)
	}
}

func TestFlagClearRereadsCurrentState(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, 30*time.Millisecond)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 1, Activity: "Strength training", Duration: 300}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	// 清除前发生的新转换不能被覆盖
	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 6, Activity: "Yoga session", Duration: 60}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	waitFor(t, "flag clear", func() bool {
		st, _ := svc.Get(ctx, "u1")
		return !st.Progress.Skills[1].IsLevelingUp
	})
	stored := gw.stored(t, "u1")
	if stored.Skills[6].Points != 2 || stored.XP != 350 || stored.Skills[1].IsLevelingUp {
		t.Fatalf("stored=%+v", stored)
	}

	// 已清除时再次触发为空操作
	before := gw.writeCount()
	svc.clearFlag("u1", 1)
	if gw.writeCount() != before {
		t.Fatalf("idempotent clear wrote again")
	}
}

func TestAdoptedSnapshotFlagIsCleared(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, 20*time.Millisecond)
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	remote := progression.NewUserProgress()
	remote.Skills[5].Rank = 3
	remote.Skills[5].IsLevelingUp = true
	payload, _ := progression.EncodeDocument(remote)
	gw.external(gateway.Snapshot{UserID: "u1", Found: true, Revision: 5, Payload: payload})

	waitFor(t, "adopt then clear", func() bool {
		st, _ := svc.Get(ctx, "u1")
		return st.Revision > 5 && st.Progress.Skills[5].Rank == 3 && !st.Progress.Skills[5].IsLevelingUp
	})
}

func TestConcurrentAppliesAreSerialized(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 5, Activity: "Meet protein goal"}); err != nil {
				t.Errorf("Apply error: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _ := svc.Get(ctx, "u1")
	s := st.Progress.Skills[5]
	if s.TotalPoints != n || s.Rank != 1+n/5 || s.Points != 0 || st.Progress.XP != n*50 {
		t.Fatalf("skill=%+v xp=%d", s, st.Progress.XP)
	}
	if svc.OpenSessions() != 1 {
		t.Fatalf("sessions=%d", svc.OpenSessions())
	}
}

func TestUpdateProfile(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()

	name := "  Sam  "
	quest := "Win regionals"
	st, err := svc.UpdateProfile(ctx, "u1", progression.ProfileInput{Name: &name, Quest: &quest})
	if err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if st.Progress.Name != "Sam" || st.Progress.Quest != "Win regionals" {
		t.Fatalf("progress=%+v", st.Progress)
	}
	if gw.stored(t, "u1").Name != "Sam" {
		t.Fatalf("profile not persisted")
	}

	long := strings.Repeat("x", progression.MaxProfileTextLen+1)
	if _, err := svc.UpdateProfile(ctx, "u1", progression.ProfileInput{Quest: &long}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err=%v, want ErrInvalidProfile", err)
	}
}

func TestWatchDeliversLatestStatus(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := svc.Watch(ctx, "u1")
	if err != nil {
		t.Fatalf("Watch error: %v", err)
	}
	first := <-ch
	if first.Revision != 1 {
		t.Fatalf("first=%+v", first)
	}

	if _, err := svc.Apply(ctx, "u1", progression.ApplyInput{SkillIndex: 0, Activity: "Custom"}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	select {
	case st := <-ch:
		if st.Progress.Skills[0].Points != 1 {
			t.Fatalf("st=%+v", st)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update")
	}

	cancel()
	waitFor(t, "watch close", func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
}

func TestCloseSessionStopsSubscription(t *testing.T) {
	gw := newFakeGateway()
	svc := newTestService(t, gw, nil, time.Hour)
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	svc.CloseSession("u1")
	if svc.OpenSessions() != 0 {
		t.Fatalf("sessions=%d", svc.OpenSessions())
	}
	waitFor(t, "unsubscribe", func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.subs["u1"]) == 0
	})
}

func TestClosedServiceRejectsCalls(t *testing.T) {
	svc := NewProgressService(newFakeGateway(), nil, Options{})
	svc.Close()
	if _, err := svc.Get(context.Background(), "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}
}
