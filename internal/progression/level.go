package progression

import "strings"

// XPPerLevel 每级所需经验跨度
const XPPerLevel = 500

// RankPointSpan 每阶所需技能点
const RankPointSpan = 5

// LevelPolicy 等级计算策略（可替换）
type LevelPolicy interface {
	// AfterApply 记录活动后根据新经验计算等级
	AfterApply(level, xp int) int
	// AfterUndo 撤销后根据新经验计算等级
	AfterUndo(level, xp int) int
}

// RecomputeLevelPolicy 默认策略：等级始终由经验完整推导，apply/undo 一致
type RecomputeLevelPolicy struct{}

func (RecomputeLevelPolicy) AfterApply(_, xp int) int { return LevelForXP(xp) }
func (RecomputeLevelPolicy) AfterUndo(_, xp int) int  { return LevelForXP(xp) }

// SingleShotLevelPolicy 兼容旧数据的策略：apply 时只按当前阈值单次跨越，undo 时完整推导
type SingleShotLevelPolicy struct{}

func (SingleShotLevelPolicy) AfterApply(level, xp int) int {
	if level < 1 {
		level = 1
	}
	threshold := XPThreshold(level)
	if xp >= threshold {
		level += xp / threshold
	}
	return level
}

func (SingleShotLevelPolicy) AfterUndo(_, xp int) int { return LevelForXP(xp) }

// ParseLevelPolicy 从配置解析等级策略，未知值回退到默认策略
func ParseLevelPolicy(name string) LevelPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "single_shot", "single-shot", "legacy":
		return SingleShotLevelPolicy{}
	default:
		return RecomputeLevelPolicy{}
	}
}

// PolicyName 策略的配置名
func PolicyName(p LevelPolicy) string {
	if _, ok := p.(SingleShotLevelPolicy); ok {
		return "single_shot"
	}
	return "recompute"
}

// XPThreshold 升到下一级的经验门槛
func XPThreshold(level int) int {
	return level * XPPerLevel
}

// LevelForXP 由经验推导等级：floor(xp/500)+1
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// ProgressFraction 当前等级内的进度（用于进度条）
func ProgressFraction(xp, level int) float64 {
	base := (level - 1) * XPPerLevel
	return float64(xp-base) / float64(XPPerLevel)
}

// ProgressPercent 当前等级内的进度百分比
func ProgressPercent(p UserProgress) float64 {
	return ProgressFraction(p.XP, p.Level) * 100
}

// MaxDisplayPoints 技能点展示上限：floor(total/5)*5+5
func MaxDisplayPoints(totalPoints int) int {
	return totalPoints/RankPointSpan*RankPointSpan + RankPointSpan
}

// SkillBarPercent 技能条百分比：升阶动画中显示满格，0 点显示最小刻度
func SkillBarPercent(s SkillState) float64 {
	if s.IsLevelingUp {
		return 100
	}
	if s.Points == 0 {
		return 5
	}
	return float64(s.Points) / float64(RankPointSpan) * 100
}

// LevelTitle 等级称号
func LevelTitle(level int) string {
	switch {
	case level >= 50:
		return "LEGEND"
	case level >= 25:
		return "CHAMPION"
	case level >= 12:
		return "GRAPPLER"
	case level >= 5:
		return "STRIKER"
	default:
		return "NOVICE"
	}
}
