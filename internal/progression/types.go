package progression

import (
	"time"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

// SkillState 单个技能的进度
type SkillState struct {
	Name         string `json:"name"`
	Points       int    `json:"points"` // 0..4，满 5 进一阶
	Color        string `json:"color"`
	XPValue      int    `json:"xpValue"` // 每点折算的经验
	Rank         int    `json:"rank"`    // >= 1
	TotalPoints  int    `json:"totalPoints"`
	IsLevelingUp bool   `json:"isLevelingUp"` // 仅作动画提示，不参与数值计算
}

// UserProgress 用户整体进度（持久化的最小单位）
type UserProgress struct {
	Name             string                        `json:"name"`
	Quest            string                        `json:"quest"`
	Level            int                           `json:"level"`
	XP               int                           `json:"xp"`
	LastActivityDate *time.Time                    `json:"lastActivityDate"`
	ConsecutiveDays  int                           `json:"consecutiveDays"`
	Skills           [catalog.SkillCount]SkillState `json:"skills"`
}

// NewUserProgress 首次访问时的默认进度
func NewUserProgress() UserProgress {
	p := UserProgress{Level: 1}
	for i, info := range catalog.Skills() {
		p.Skills[i] = SkillState{
			Name:    info.Name,
			Color:   info.Color,
			XPValue: info.XPValue,
			Rank:    1,
		}
	}
	return p
}

// Clone 深拷贝（技能数组本身是值，仅需复制时间指针）
func (p UserProgress) Clone() UserProgress {
	out := p
	if p.LastActivityDate != nil {
		t := *p.LastActivityDate
		out.LastActivityDate = &t
	}
	return out
}

// ValidSkillIndex 技能索引是否合法
func ValidSkillIndex(index int) bool {
	return index >= 0 && index < catalog.SkillCount
}

// HasLevelingFlags 返回仍处于升阶动画中的技能索引
func (p UserProgress) HasLevelingFlags() []int {
	var out []int
	for i, s := range p.Skills {
		if s.IsLevelingUp {
			out = append(out, i)
		}
	}
	return out
}
