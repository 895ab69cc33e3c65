package progression

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

const (
	idxTechnique = 0
	idxEndurance = 2
	idxMindset   = 4
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testEngine() Engine { return NewEngine(RecomputeLevelPolicy{}, time.UTC) }

func TestPointsTimed(t *testing.T) {
	def := catalog.ActivityDefinition{Name: "Visualization", UnitMinutes: 10}
	assert.Equal(t, 0, Points(def, 9))
	assert.Equal(t, 1, Points(def, 10))
	assert.Equal(t, 3, Points(def, 39))
	assert.Equal(t, 0, Points(def, -5))

	for _, sk := range catalog.Skills() {
		for _, a := range catalog.ActivitiesFor(sk.Name) {
			if a.UnitMinutes <= 0 {
				continue
			}
			assert.Equal(t, 0, Points(a, a.UnitMinutes-1), "%s/%s", sk.Name, a.Name)
			assert.Equal(t, 1, Points(a, a.UnitMinutes), "%s/%s", sk.Name, a.Name)
			assert.Equal(t, 7, Points(a, a.UnitMinutes*7+a.UnitMinutes-1), "%s/%s", sk.Name, a.Name)
		}
	}
}

func TestPointsOneOffAndCustom(t *testing.T) {
	oneOff := catalog.ActivityDefinition{Name: "Run 2 miles", UnitMinutes: catalog.OneOffUnit}
	custom := catalog.ActivityDefinition{Name: catalog.CustomName, UnitMinutes: catalog.CustomUnit}
	for _, d := range []int{0, 1, 59, 1000} {
		assert.Equal(t, 1, Points(oneOff, d))
		assert.Equal(t, 1, Points(custom, d))
	}
}

func TestPointsForUnknownActivity(t *testing.T) {
	p, matched := PointsFor("Technique", "Sumo with my cousin", 300)
	assert.False(t, matched)
	assert.Equal(t, 1, p)
}

func TestApplyCustomNamedLikeTimedActivity(t *testing.T) {
	// 自定义名称与目录计时活动同名时仍按自定义 1 点
	next, out, err := testEngine().Apply(NewUserProgress(), ApplyInput{SkillIndex: idxTechnique, Activity: "Film Study", Custom: true}, day0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.BasePoints)
	assert.Equal(t, 1, out.PointsEarned)
	assert.True(t, out.Custom)
	assert.Equal(t, "Film Study", out.Activity)
	assert.Equal(t, 1, next.Skills[idxTechnique].Points)
	assert.Equal(t, next.Skills[idxTechnique].XPValue, next.XP)

	// 同名但非自定义时按计时活动计分
	_, timed, err := testEngine().Apply(NewUserProgress(), ApplyInput{SkillIndex: idxTechnique, Activity: "Film Study"}, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, timed.PointsEarned)
	assert.False(t, timed.Custom)
}

func withPoints(p UserProgress, idx, points int) UserProgress {
	p.Skills[idx].Points = points
	return p
}

// 3 点 + 2 点 -> 升一阶
func TestApplyRankUpByOne(t *testing.T) {
	prev := withPoints(NewUserProgress(), idxTechnique, 3)
	// 按目录单位时长的两倍记录，得 2 点
	unit := mustUnit(t, "Technique", "Wrestling practice")
	next, out, err := testEngine().Apply(prev, ApplyInput{SkillIndex: idxTechnique, Activity: "Wrestling practice", Duration: unit * 2}, day0)
	require.NoError(t, err)

	s := next.Skills[idxTechnique]
	assert.Equal(t, 0, s.Points)
	assert.Equal(t, 2, s.Rank)
	assert.True(t, s.IsLevelingUp)
	assert.Equal(t, 2, s.TotalPoints)
	assert.Equal(t, 1, out.RankUps)
	assert.Equal(t, 100, next.XP)

	// 原状态不被修改
	assert.Equal(t, 3, prev.Skills[idxTechnique].Points)
	assert.Nil(t, prev.LastActivityDate)
}

func TestApplyMultiRankUp(t *testing.T) {
	prev := withPoints(NewUserProgress(), idxTechnique, 3)
	unit := mustUnit(t, "Technique", "Wrestling practice")
	next, out, err := testEngine().Apply(prev, ApplyInput{SkillIndex: idxTechnique, Activity: "Wrestling practice", Duration: unit * 7}, day0)
	require.NoError(t, err)
	s := next.Skills[idxTechnique]
	assert.Equal(t, 0, s.Points)
	assert.Equal(t, 3, s.Rank)
	assert.Equal(t, 2, out.RankUps)
	assert.Equal(t, 7, s.TotalPoints)
}

func TestApplyZeroPointsIsAccepted(t *testing.T) {
	prev := NewUserProgress()
	next, out, err := testEngine().Apply(prev, ApplyInput{SkillIndex: idxMindset, Activity: "Visualization", Duration: 3}, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.PointsEarned)
	assert.Equal(t, 0, next.Skills[idxMindset].Points)
	assert.Equal(t, 0, next.XP)
	require.NotNil(t, next.LastActivityDate)
}

func TestApplyInvalidSkillNoMutation(t *testing.T) {
	prev := NewUserProgress()
	for _, idx := range []int{-1, 7, 99} {
		next, _, err := testEngine().Apply(prev, ApplyInput{SkillIndex: idx, Activity: "Custom"}, day0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSkill))
		assert.Equal(t, prev, next)
	}
}

func TestUndoBoundary(t *testing.T) {
	prev := NewUserProgress()
	prev.Skills[idxTechnique].Rank = 2
	prev.Skills[idxTechnique].TotalPoints = 5
	prev.XP = 250

	next, out, err := testEngine().Undo(prev, idxTechnique)
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.True(t, out.RankDown)
	assert.Equal(t, 4, next.Skills[idxTechnique].Points)
	assert.Equal(t, 1, next.Skills[idxTechnique].Rank)
	assert.Equal(t, 4, next.Skills[idxTechnique].TotalPoints)
	assert.Equal(t, 200, next.XP)
}

func TestUndoRejectedAtFloor(t *testing.T) {
	prev := NewUserProgress()
	next, out, err := testEngine().Undo(prev, idxTechnique)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, prev, next)
}

func TestUndoClampsXP(t *testing.T) {
	prev := withPoints(NewUserProgress(), idxEndurance, 1)
	prev.XP = 20
	next, out, err := testEngine().Undo(prev, idxEndurance)
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Equal(t, 0, next.XP)
	assert.Equal(t, 20, out.XPRemoved)
	assert.Equal(t, 1, next.Level)
}

func TestUndoNoStreakEffect(t *testing.T) {
	prev := withPoints(NewUserProgress(), idxEndurance, 2)
	last := day0
	prev.LastActivityDate = &last
	prev.ConsecutiveDays = 4
	next, _, err := testEngine().Undo(prev, idxEndurance)
	require.NoError(t, err)
	assert.Equal(t, 4, next.ConsecutiveDays)
	assert.Equal(t, day0, *next.LastActivityDate)
}

func TestApplyUndoRoundTrip(t *testing.T) {
	e := testEngine()
	prev := withPoints(NewUserProgress(), idxEndurance, 2)
	prev.Skills[idxEndurance].TotalPoints = 2
	prev.XP = 100

	mid, out, err := e.Apply(prev, ApplyInput{SkillIndex: idxEndurance, Activity: "Run 2 miles"}, day0)
	require.NoError(t, err)
	require.Equal(t, 0, out.StreakBonus)
	require.Equal(t, 1, out.PointsEarned)

	back, undo, err := e.Undo(mid, idxEndurance)
	require.NoError(t, err)
	require.True(t, undo.Applied)
	assert.Equal(t, prev.Skills[idxEndurance].Points, back.Skills[idxEndurance].Points)
	assert.Equal(t, prev.Skills[idxEndurance].Rank, back.Skills[idxEndurance].Rank)
	assert.Equal(t, prev.Skills[idxEndurance].TotalPoints, back.Skills[idxEndurance].TotalPoints)
	assert.Equal(t, prev.XP, back.XP)
}

func TestApplyUndoRoundTripAcrossRank(t *testing.T) {
	e := testEngine()
	prev := withPoints(NewUserProgress(), idxEndurance, 4)
	prev.Skills[idxEndurance].TotalPoints = 4

	mid, _, err := e.Apply(prev, ApplyInput{SkillIndex: idxEndurance, Activity: "Custom"}, day0)
	require.NoError(t, err)
	require.Equal(t, 2, mid.Skills[idxEndurance].Rank)

	back, _, err := e.Undo(mid, idxEndurance)
	require.NoError(t, err)
	assert.Equal(t, 4, back.Skills[idxEndurance].Points)
	assert.Equal(t, 1, back.Skills[idxEndurance].Rank)
	assert.Equal(t, 4, back.Skills[idxEndurance].TotalPoints)
}

func TestStreakSevenDayBonus(t *testing.T) {
	e := testEngine()
	p := NewUserProgress()
	var err error
	var out ApplyOutcome

	p, out, err = e.Apply(p, ApplyInput{SkillIndex: idxEndurance, Activity: "Run 2 miles"}, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.ConsecutiveDays)
	assert.Equal(t, 0, out.StreakBonus)

	for d := 1; d <= 7; d++ {
		p, out, err = e.Apply(p, ApplyInput{SkillIndex: idxEndurance, Activity: "Run 2 miles"}, day0.AddDate(0, 0, d))
		require.NoError(t, err)
		assert.Equal(t, d, p.ConsecutiveDays)
		if d == 7 {
			assert.Equal(t, 1, out.StreakBonus, "day %d", d)
			assert.Equal(t, 2, out.PointsEarned)
		} else {
			assert.Equal(t, 0, out.StreakBonus, "day %d", d)
		}
	}
}

func TestStreakSameDayAndGap(t *testing.T) {
	e := testEngine()
	p := NewUserProgress()
	last := day0
	p.LastActivityDate = &last
	p.ConsecutiveDays = 3

	same, _, err := e.Apply(p, ApplyInput{SkillIndex: 0, Activity: "Custom"}, day0.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, same.ConsecutiveDays)
	assert.Equal(t, day0.Add(10*time.Hour), *same.LastActivityDate)

	gap, _, err := e.Apply(p, ApplyInput{SkillIndex: 0, Activity: "Custom"}, day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 0, gap.ConsecutiveDays)

	skew, _, err := e.Apply(p, ApplyInput{SkillIndex: 0, Activity: "Custom"}, day0.AddDate(0, 0, -2))
	require.NoError(t, err)
	assert.Equal(t, 3, skew.ConsecutiveDays)
}

func TestDayDifferenceUsesCalendarDays(t *testing.T) {
	late := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	early := time.Date(2026, 3, 3, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, 1, DayDifference(late, early, time.UTC))

	shanghai := time.FixedZone("CST", 8*3600)
	// UTC 15:50 与 16:10 在 +8 时区跨越午夜
	a := time.Date(2026, 3, 2, 15, 50, 0, 0, time.UTC)
	b := time.Date(2026, 3, 2, 16, 10, 0, 0, time.UTC)
	assert.Equal(t, 0, DayDifference(a, b, time.UTC))
	assert.Equal(t, 1, DayDifference(a, b, shanghai))
}

func TestLevelThresholdBoundary(t *testing.T) {
	for _, policy := range []LevelPolicy{RecomputeLevelPolicy{}, SingleShotLevelPolicy{}} {
		assert.Equal(t, 2, policy.AfterApply(1, 500))
		assert.Equal(t, 1, policy.AfterApply(1, 499))
	}
}

func TestLevelPoliciesDiffer(t *testing.T) {
	// level 2, xp 1600：单次跨越 2 + 1600/1000 = 3；完整推导 1600/500+1 = 4
	assert.Equal(t, 3, SingleShotLevelPolicy{}.AfterApply(2, 1600))
	assert.Equal(t, 4, RecomputeLevelPolicy{}.AfterApply(2, 1600))
	assert.Equal(t, 4, SingleShotLevelPolicy{}.AfterUndo(9, 1600))
}

func TestApplyLevelUpViaEngine(t *testing.T) {
	prev := NewUserProgress()
	prev.XP = 450
	next, out, err := testEngine().Apply(prev, ApplyInput{SkillIndex: idxEndurance, Activity: "Run 2 miles"}, day0)
	require.NoError(t, err)
	assert.Equal(t, 500, next.XP)
	assert.Equal(t, 1, out.LevelBefore)
	assert.Equal(t, 2, out.LevelAfter)
}

func TestParseLevelPolicy(t *testing.T) {
	assert.IsType(t, SingleShotLevelPolicy{}, ParseLevelPolicy("single_shot"))
	assert.IsType(t, SingleShotLevelPolicy{}, ParseLevelPolicy(" Legacy "))
	assert.IsType(t, RecomputeLevelPolicy{}, ParseLevelPolicy("recompute"))
	assert.IsType(t, RecomputeLevelPolicy{}, ParseLevelPolicy(""))
	assert.Equal(t, "single_shot", PolicyName(ParseLevelPolicy("legacy")))
	assert.Equal(t, "recompute", PolicyName(nil))
}

func TestDisplayHelpers(t *testing.T) {
	assert.Equal(t, 10, MaxDisplayPoints(7))
	assert.Equal(t, 5, MaxDisplayPoints(0))
	assert.Equal(t, 10, MaxDisplayPoints(5))

	assert.Equal(t, float64(100), SkillBarPercent(SkillState{Points: 2, IsLevelingUp: true}))
	assert.Equal(t, float64(5), SkillBarPercent(SkillState{}))
	assert.InDelta(t, 60, SkillBarPercent(SkillState{Points: 3}), 1e-9)

	assert.InDelta(t, 0.5, ProgressFraction(750, 2), 1e-9)
	assert.InDelta(t, 50, ProgressPercent(UserProgress{XP: 250, Level: 1}), 1e-9)

	assert.Equal(t, "NOVICE", LevelTitle(1))
	assert.Equal(t, "STRIKER", LevelTitle(5))
	assert.Equal(t, "GRAPPLER", LevelTitle(12))
	assert.Equal(t, "CHAMPION", LevelTitle(25))
	assert.Equal(t, "LEGEND", LevelTitle(50))
}

func TestClearLevelingUpIdempotent(t *testing.T) {
	p := NewUserProgress()
	p.Skills[1].IsLevelingUp = true
	p.Skills[1].Rank = 3

	cleared, changed := ClearLevelingUp(p, 1)
	assert.True(t, changed)
	assert.False(t, cleared.Skills[1].IsLevelingUp)
	assert.Equal(t, 3, cleared.Skills[1].Rank)
	assert.True(t, p.Skills[1].IsLevelingUp)

	again, changed := ClearLevelingUp(cleared, 1)
	assert.False(t, changed)
	assert.Equal(t, cleared, again)

	_, changed = ClearLevelingUp(p, 42)
	assert.False(t, changed)
}

func TestSetProfile(t *testing.T) {
	name := "Jordan"
	p := SetProfile(NewUserProgress(), &name, nil)
	assert.Equal(t, "Jordan", p.Name)
	assert.Equal(t, "", p.Quest)
}

func mustUnit(t *testing.T, skill, activity string) int {
	t.Helper()
	def, ok := catalog.Lookup(skill, activity)
	require.True(t, ok, "%s/%s not in catalog", skill, activity)
	require.Positive(t, def.UnitMinutes)
	return def.UnitMinutes
}
