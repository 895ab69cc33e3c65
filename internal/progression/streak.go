package progression

import "time"

// StreakBonusEvery 连续天数每达到该倍数奖励 1 点
const StreakBonusEvery = 7

// DayDifference 计算两个时间点在指定时区下相差的自然日数（now - last）
func DayDifference(last, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	ly, lm, ld := last.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	// 用 UTC 零点计算，避免夏令时导致的 23/25 小时
	l := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(n.Sub(l).Hours() / 24)
}

// advanceStreak 更新连续天数并返回本次奖励点数；lastActivityDate 总是更新为 now
func advanceStreak(p *UserProgress, now time.Time, loc *time.Location) int {
	bonus := 0
	if p.LastActivityDate != nil {
		gap := DayDifference(*p.LastActivityDate, now, loc)
		switch {
		case gap == 1:
			p.ConsecutiveDays++
			if p.ConsecutiveDays%StreakBonusEvery == 0 {
				bonus = 1
			}
		case gap > 1:
			p.ConsecutiveDays = 0
		}
		// gap == 0（同一天）或负数（时钟回拨）保持不变
	}
	t := now
	p.LastActivityDate = &t
	return bonus
}
