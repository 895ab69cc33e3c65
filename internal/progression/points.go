package progression

import "github.com/yuqie6/WrestleQuest/internal/catalog"

// Points 计算单次记录获得的技能点
// 自定义与一次性活动固定 1 点；其余按 floor(duration/unit)，不足一个单位得 0 点（合法结果）。
func Points(def catalog.ActivityDefinition, duration int) int {
	if def.IsCustom() || def.IsOneOff() {
		return 1
	}
	if duration < 0 {
		duration = 0
	}
	if def.UnitMinutes < 0 {
		// 非哨兵的负值视为目录错误，按自定义处理
		return 1
	}
	return duration / def.UnitMinutes
}

// PointsFor 解析技能下的活动名并计算点数；目录中找不到时按自定义 1 点处理。
func PointsFor(skillName, activityName string, duration int) (points int, matched bool) {
	def, ok := catalog.Lookup(skillName, activityName)
	if !ok {
		return 1, false
	}
	return Points(def, duration), true
}
