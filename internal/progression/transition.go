package progression

import (
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

var (
	// ErrInvalidSkill 技能索引越界，状态不做任何修改
	ErrInvalidSkill = errors.New("技能索引无效")
	// ErrMalformedDocument 进度文档缺字段或结构不合法
	ErrMalformedDocument = errors.New("进度文档格式错误")
)

// Engine 纯函数式的状态转换器：输入旧状态与事件，返回新状态，不持有可变状态
type Engine struct {
	Policy   LevelPolicy
	Location *time.Location // 连续天数按该时区的自然日计算
}

// NewEngine 创建转换器，nil 参数回退到默认值
func NewEngine(policy LevelPolicy, loc *time.Location) Engine {
	if policy == nil {
		policy = RecomputeLevelPolicy{}
	}
	if loc == nil {
		loc = time.Local
	}
	return Engine{Policy: policy, Location: loc}
}

func (e Engine) policy() LevelPolicy {
	if e.Policy == nil {
		return RecomputeLevelPolicy{}
	}
	return e.Policy
}

// ApplyInput 一次活动记录
type ApplyInput struct {
	SkillIndex int
	Activity   string
	Duration   int // 分钟，负数按 0 处理
	// Custom 为 true 时 Activity 只是用户填写的标签，固定按自定义活动计 1 点，
	// 即使标签与目录中的计时活动同名
	Custom bool
}

// ApplyOutcome 记录活动产生的变化
type ApplyOutcome struct {
	SkillIndex   int
	SkillName    string
	Activity     string
	Duration     int
	Custom       bool
	CatalogMatch bool // false 表示目录外活动，按 1 点处理
	BasePoints   int
	StreakBonus  int
	PointsEarned int
	RankUps      int
	XPGained     int
	LevelBefore  int
	LevelAfter   int
}

// UndoOutcome 撤销结果；Applied=false 表示前置条件不满足，状态未变
type UndoOutcome struct {
	Applied     bool
	SkillIndex  int
	SkillName   string
	RankDown    bool
	XPRemoved   int
	LevelBefore int
	LevelAfter  int
}

// Apply 记录一次活动
func (e Engine) Apply(prev UserProgress, in ApplyInput, now time.Time) (UserProgress, ApplyOutcome, error) {
	if !ValidSkillIndex(in.SkillIndex) {
		return prev, ApplyOutcome{}, fmt.Errorf("%w: %d", ErrInvalidSkill, in.SkillIndex)
	}
	if in.Duration < 0 {
		in.Duration = 0
	}

	next := prev.Clone()
	skill := &next.Skills[in.SkillIndex]

	base, matched := PointsFor(skill.Name, in.Activity, in.Duration)
	if in.Custom {
		in.Duration = 0
		base, matched = PointsFor(skill.Name, catalog.CustomName, 0)
	}
	bonus := advanceStreak(&next, now, e.Location)
	earned := base + bonus

	total := skill.Points + earned
	rankUps := total / RankPointSpan
	remainder := total % RankPointSpan

	skill.TotalPoints += earned
	xpGained := skill.XPValue * earned
	next.XP += xpGained

	if rankUps > 0 {
		skill.Rank += rankUps
		skill.Points = remainder
		skill.IsLevelingUp = true
	} else {
		skill.Points = total
	}

	levelBefore := next.Level
	next.Level = e.policy().AfterApply(next.Level, next.XP)

	return next, ApplyOutcome{
		SkillIndex:   in.SkillIndex,
		SkillName:    skill.Name,
		Activity:     in.Activity,
		Duration:     in.Duration,
		Custom:       in.Custom,
		CatalogMatch: matched,
		BasePoints:   base,
		StreakBonus:  bonus,
		PointsEarned: earned,
		RankUps:      rankUps,
		XPGained:     xpGained,
		LevelBefore:  levelBefore,
		LevelAfter:   next.Level,
	}, nil
}

// CanUndo 是否允许扣点：有点数，或在阶位边界且阶位大于 1
func CanUndo(s SkillState) bool {
	return s.Points > 0 || (s.Points == 0 && s.Rank > 1)
}

// Undo 扣除一点；不满足前置条件时返回 Applied=false 且状态不变
func (e Engine) Undo(prev UserProgress, skillIndex int) (UserProgress, UndoOutcome, error) {
	if !ValidSkillIndex(skillIndex) {
		return prev, UndoOutcome{}, fmt.Errorf("%w: %d", ErrInvalidSkill, skillIndex)
	}
	cur := prev.Skills[skillIndex]
	if !CanUndo(cur) {
		return prev, UndoOutcome{SkillIndex: skillIndex, SkillName: cur.Name}, nil
	}

	next := prev.Clone()
	skill := &next.Skills[skillIndex]
	rankDown := false
	if skill.Points == 0 {
		skill.Points = RankPointSpan - 1
		skill.Rank--
		rankDown = true
	} else {
		skill.Points--
	}
	skill.TotalPoints--
	if skill.TotalPoints < 0 {
		skill.TotalPoints = 0
	}

	xpBefore := next.XP
	next.XP -= skill.XPValue
	if next.XP < 0 {
		next.XP = 0
	}
	levelBefore := next.Level
	next.Level = e.policy().AfterUndo(next.Level, next.XP)

	return next, UndoOutcome{
		Applied:     true,
		SkillIndex:  skillIndex,
		SkillName:   skill.Name,
		RankDown:    rankDown,
		XPRemoved:   xpBefore - next.XP,
		LevelBefore: levelBefore,
		LevelAfter:  next.Level,
	}, nil
}

// ClearLevelingUp 清除升阶动画标记；已为 false 时返回 changed=false
func ClearLevelingUp(prev UserProgress, skillIndex int) (UserProgress, bool) {
	if !ValidSkillIndex(skillIndex) || !prev.Skills[skillIndex].IsLevelingUp {
		return prev, false
	}
	next := prev.Clone()
	next.Skills[skillIndex].IsLevelingUp = false
	return next, true
}

// SetProfile 修改名称与目标；nil 表示不修改
func SetProfile(prev UserProgress, name, quest *string) UserProgress {
	next := prev.Clone()
	if name != nil {
		next.Name = *name
	}
	if quest != nil {
		next.Quest = *quest
	}
	return next
}
