package catalog

import (
	"strconv"
	"strings"
)

// Version 目录版本，随活动列表变化递增
const Version = 1

const (
	// OneOffUnit 一次性活动：无时长概念，固定 1 点
	OneOffUnit = 0
	// CustomUnit 自定义活动哨兵值：用户自填名称，固定 1 点
	CustomUnit = -1
	// CustomName 自定义活动在目录中的名称
	CustomName = "Custom"
)

// ActivityDefinition 活动定义
type ActivityDefinition struct {
	Name        string `json:"name"`
	UnitMinutes int    `json:"unit_minutes"` // >0 按分钟折算；0 一次性；-1 自定义
}

// IsCustom 是否为自定义活动
func (a ActivityDefinition) IsCustom() bool {
	return a.UnitMinutes == CustomUnit
}

// IsOneOff 是否为一次性活动
func (a ActivityDefinition) IsOneOff() bool {
	return a.UnitMinutes == OneOffUnit
}

// SkillInfo 技能静态信息
type SkillInfo struct {
	Name    string `json:"name"`
	Color   string `json:"color"`
	XPValue int    `json:"xp_value"`
}

// DefaultXPValue 每点技能点折算的经验值
const DefaultXPValue = 50

// SkillCount 固定技能数量
const SkillCount = 7

// skills 固定且有序，索引即技能编号
var skills = [SkillCount]SkillInfo{
	{Name: "Technique", Color: "bg-blue-400", XPValue: DefaultXPValue},
	{Name: "Strength", Color: "bg-yellow-400", XPValue: DefaultXPValue},
	{Name: "Endurance", Color: "bg-pink-400", XPValue: DefaultXPValue},
	{Name: "Spd/Agility", Color: "bg-purple-400", XPValue: DefaultXPValue},
	{Name: "Mindset", Color: "bg-orange-400", XPValue: DefaultXPValue},
	{Name: "Rec/Health", Color: "bg-red-400", XPValue: DefaultXPValue},
	{Name: "Flexibility", Color: "bg-green-400", XPValue: DefaultXPValue},
}

var custom = ActivityDefinition{Name: CustomName, UnitMinutes: CustomUnit}

var activities = map[string][]ActivityDefinition{
	"Technique": {
		{Name: "Wrestling practice", UnitMinutes: 60},
		{Name: "Specific drilling", UnitMinutes: 30},
		{Name: "Film Study", UnitMinutes: 20},
		custom,
	},
	"Strength": {
		{Name: "Strength training", UnitMinutes: 60},
		custom,
	},
	"Endurance": {
		{Name: "Run 2 miles", UnitMinutes: OneOffUnit},
		{Name: "HIIT cardio session", UnitMinutes: 30},
		{Name: "Wrestling conditioning", UnitMinutes: 60},
		custom,
	},
	"Spd/Agility": {
		{Name: "Sprint intervals", UnitMinutes: OneOffUnit},
		{Name: "Ladder/agility drills", UnitMinutes: 20},
		{Name: "Plyometric exercises", UnitMinutes: 30},
		custom,
	},
	"Mindset": {
		{Name: "Visualization", UnitMinutes: 10},
		{Name: "Mindfulness meditation", UnitMinutes: 10},
		{Name: "Gratitude journal", UnitMinutes: 10},
		{Name: "Positive self-talk", UnitMinutes: 10},
		custom,
	},
	"Rec/Health": {
		{Name: "Ice bath/contrast shower", UnitMinutes: OneOffUnit},
		{Name: "Stretch/foam roll", UnitMinutes: 15},
		{Name: "1 gallon water intake", UnitMinutes: OneOffUnit},
		{Name: "Meet protein goal", UnitMinutes: OneOffUnit},
		custom,
	},
	"Flexibility": {
		{Name: "Yoga session", UnitMinutes: 30},
		{Name: "Static stretching", UnitMinutes: 15},
		custom,
	},
}

// Skills 返回固定技能列表（副本）
func Skills() []SkillInfo {
	out := make([]SkillInfo, SkillCount)
	copy(out, skills[:])
	return out
}

// SkillAt 按索引取技能
func SkillAt(index int) (SkillInfo, bool) {
	if index < 0 || index >= SkillCount {
		return SkillInfo{}, false
	}
	return skills[index], true
}

// ActivitiesFor 返回某技能下的活动列表（副本），未知技能返回 nil
func ActivitiesFor(skillName string) []ActivityDefinition {
	list, ok := activities[skillName]
	if !ok {
		return nil
	}
	out := make([]ActivityDefinition, len(list))
	copy(out, list)
	return out
}

// Lookup 在技能目录中按名称精确查找活动
func Lookup(skillName, activityName string) (ActivityDefinition, bool) {
	for _, a := range activities[skillName] {
		if a.Name == activityName {
			return a, true
		}
	}
	return ActivityDefinition{}, false
}

// SkillKey 技能名的稳定 slug：Spd/Agility → spd-agility
func SkillKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "/", "-")
	key = strings.ReplaceAll(key, " ", "-")

	var b strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveSkill 解析用户输入的技能：索引（0-6）、名称（忽略大小写）或 slug
func ResolveSkill(input string) (int, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return -1, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n < SkillCount {
			return n, true
		}
		return -1, false
	}
	key := SkillKey(s)
	for i, sk := range skills {
		if strings.EqualFold(sk.Name, s) || SkillKey(sk.Name) == key {
			return i, true
		}
	}
	return -1, false
}
