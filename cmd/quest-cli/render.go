package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuqie6/WrestleQuest/internal/dto"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// bar 文本进度条
func bar(percent float64, width int) string {
	n := int(percent / 100 * float64(width))
	n = max(0, min(n, width))
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func printProgress(w io.Writer, p dto.ProgressDTO) {
	name := p.Name
	if name == "" {
		name = p.UserID
	}
	fmt.Fprintf(w, "🤼 %s  Lv.%d %s\n", name, p.Level, p.Title)
	if p.Quest != "" {
		fmt.Fprintf(w, "🎯 %s\n", p.Quest)
	}
	fmt.Fprintf(w, "XP %d  [%s] %.0f%%  距下一级 %d\n", p.XP, bar(p.ProgressPercent, 20), p.ProgressPercent, p.XPToNext)
	fmt.Fprintf(w, "🔥 连续 %d 天\n", p.ConsecutiveDays)
	fmt.Fprintln(w)
	for _, s := range p.Skills {
		flag := ""
		if s.IsLevelingUp {
			flag = " ⬆"
		}
		fmt.Fprintf(w, "  %d. %-12s R%-3d [%s] %d/5  累计 %d/%d%s\n",
			s.Index, s.Name, s.Rank, bar(s.BarPercent, 10), s.Points, s.TotalPoints, s.MaxDisplayPoints, flag)
	}
	if p.WriteState == "failed" {
		fmt.Fprintf(w, "\n⚠️  最近一次写入失败: %s\n", p.LastError)
	}
}

func printProgressLine(w io.Writer, p dto.ProgressDTO) {
	parts := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		parts = append(parts, fmt.Sprintf("%s R%d·%d", s.Key, s.Rank, s.Points))
	}
	fmt.Fprintf(w, "[rev %d] Lv.%d XP %d 连续 %d 天 | %s\n", p.Revision, p.Level, p.XP, p.ConsecutiveDays, strings.Join(parts, " "))
}

func printApply(w io.Writer, skill string, r dto.ApplyResultDTO) {
	fmt.Fprintf(w, "✅ %s: %s +%d 点", skill, r.Activity, r.PointsEarned)
	if r.StreakBonus > 0 {
		fmt.Fprintf(w, "（含连续训练奖励 %d）", r.StreakBonus)
	}
	fmt.Fprintf(w, "，经验 +%d\n", r.XPGained)
	if !r.CatalogMatch {
		fmt.Fprintln(w, "   目录外活动，按 1 点计")
	}
	if r.RankUps > 0 {
		fmt.Fprintf(w, "⬆️  %s 提升 %d 阶\n", skill, r.RankUps)
	}
	if r.LevelAfter > r.LevelBefore {
		fmt.Fprintf(w, "🎉 升级！Lv.%d → Lv.%d\n", r.LevelBefore, r.LevelAfter)
	}
	printProgressLine(w, r.Progress)
}

func printUndo(w io.Writer, skill string, r dto.UndoResultDTO) {
	fmt.Fprintf(w, "↩️  %s -1 点，经验 -%d\n", skill, r.XPRemoved)
	if r.RankDown {
		fmt.Fprintf(w, "⬇️  %s 降阶\n", skill)
	}
	if r.LevelAfter < r.LevelBefore {
		fmt.Fprintf(w, "   等级 Lv.%d → Lv.%d\n", r.LevelBefore, r.LevelAfter)
	}
	printProgressLine(w, r.Progress)
}

func printCatalogSkill(w io.Writer, s dto.CatalogSkillDTO) {
	fmt.Fprintf(w, "%d. %s (%s)\n", s.Index, s.Name, s.Key)
	for _, a := range s.Activities {
		switch a.Kind {
		case "timed":
			fmt.Fprintf(w, "   • %s（每 %d 分钟 1 点）\n", a.Name, a.UnitMinutes)
		case "one_off":
			fmt.Fprintf(w, "   • %s（1 点）\n", a.Name)
		default:
			fmt.Fprintf(w, "   • %s（自定义名称，1 点）\n", a.Name)
		}
	}
}

func printHistory(w io.Writer, rows []dto.HistoryEntryDTO, loc *time.Location) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "暂无记录")
		return
	}
	if loc == nil {
		loc = time.Local
	}
	for _, r := range rows {
		ts := time.UnixMilli(r.Timestamp).In(loc).Format("01-02 15:04")
		switch r.Kind {
		case "undo":
			fmt.Fprintf(w, "%s  ↩️  %-12s -1 点  XP %d\n", ts, r.Skill, r.XPDelta)
		default:
			act := r.Activity
			if r.Duration > 0 {
				act = fmt.Sprintf("%s %d 分钟", act, r.Duration)
			}
			fmt.Fprintf(w, "%s  ✅ %-12s %s  +%d 点  XP +%d\n", ts, r.Skill, act, r.PointsEarned, r.XPDelta)
		}
	}
}

func printTotals(w io.Writer, rows []dto.SkillTotalDTO) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "暂无记录")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s %+d 点  %d 条\n", r.Key, r.Points, r.Events)
	}
}
