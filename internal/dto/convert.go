package dto

import (
	"time"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/repository"
	"github.com/yuqie6/WrestleQuest/internal/schema"
	"github.com/yuqie6/WrestleQuest/internal/service"
)

func NewProgressDTO(st service.Status) ProgressDTO {
	p := st.Progress
	out := ProgressDTO{
		UserID:          st.UserID,
		Name:            p.Name,
		Quest:           p.Quest,
		Level:           p.Level,
		Title:           progression.LevelTitle(p.Level),
		XP:              p.XP,
		XPToNext:        max(progression.XPThreshold(p.Level)-p.XP, 0),
		ProgressPercent: progression.ProgressPercent(p),
		ConsecutiveDays: p.ConsecutiveDays,
		Skills:          make([]SkillDTO, 0, len(p.Skills)),
		Revision:        st.Revision,
		WriteState:      st.WriteState.String(),
		LastError:       st.LastError,
	}
	if p.LastActivityDate != nil {
		s := p.LastActivityDate.Format(time.RFC3339)
		out.LastActivityDate = &s
	}
	for i, sk := range p.Skills {
		out.Skills = append(out.Skills, SkillDTO{
			Index:            i,
			Key:              catalog.SkillKey(sk.Name),
			Name:             sk.Name,
			Color:            sk.Color,
			Points:           sk.Points,
			Rank:             sk.Rank,
			TotalPoints:      sk.TotalPoints,
			XPValue:          sk.XPValue,
			IsLevelingUp:     sk.IsLevelingUp,
			MaxDisplayPoints: progression.MaxDisplayPoints(sk.TotalPoints),
			BarPercent:       progression.SkillBarPercent(sk),
		})
	}
	return out
}

func NewApplyResultDTO(res *service.ApplyResult) ApplyResultDTO {
	o := res.Outcome
	return ApplyResultDTO{
		Progress:     NewProgressDTO(res.Status),
		Activity:     o.Activity,
		Custom:       o.Custom,
		CatalogMatch: o.CatalogMatch,
		BasePoints:   o.BasePoints,
		StreakBonus:  o.StreakBonus,
		PointsEarned: o.PointsEarned,
		RankUps:      o.RankUps,
		XPGained:     o.XPGained,
		LevelBefore:  o.LevelBefore,
		LevelAfter:   o.LevelAfter,
	}
}

func NewUndoResultDTO(res *service.UndoResult) UndoResultDTO {
	o := res.Outcome
	return UndoResultDTO{
		Progress:    NewProgressDTO(res.Status),
		Applied:     o.Applied,
		RankDown:    o.RankDown,
		XPRemoved:   o.XPRemoved,
		LevelBefore: o.LevelBefore,
		LevelAfter:  o.LevelAfter,
	}
}

// ActivityKind timed / one_off / custom
func ActivityKind(a catalog.ActivityDefinition) string {
	switch {
	case a.IsCustom():
		return "custom"
	case a.IsOneOff():
		return "one_off"
	default:
		return "timed"
	}
}

func NewCatalogSkillDTO(index int, info catalog.SkillInfo) CatalogSkillDTO {
	acts := catalog.ActivitiesFor(info.Name)
	out := CatalogSkillDTO{
		Index:      index,
		Key:        catalog.SkillKey(info.Name),
		Name:       info.Name,
		Color:      info.Color,
		XPValue:    info.XPValue,
		Activities: make([]ActivityDTO, 0, len(acts)),
	}
	for _, a := range acts {
		out.Activities = append(out.Activities, ActivityDTO{Name: a.Name, UnitMinutes: a.UnitMinutes, Kind: ActivityKind(a)})
	}
	return out
}

func NewCatalogDTO() CatalogDTO {
	skills := catalog.Skills()
	out := CatalogDTO{Version: catalog.Version, Skills: make([]CatalogSkillDTO, 0, len(skills))}
	for i, info := range skills {
		out.Skills = append(out.Skills, NewCatalogSkillDTO(i, info))
	}
	return out
}

func NewSkillTotalsDTO(rows []repository.SkillTotal) []SkillTotalDTO {
	out := make([]SkillTotalDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, SkillTotalDTO{Key: r.SkillKey, Points: r.Points, Events: r.Events})
	}
	return out
}

func NewHistoryDTO(rows []schema.ActivityLog) []HistoryEntryDTO {
	out := make([]HistoryEntryDTO, 0, len(rows))
	for _, r := range rows {
		skill := r.SkillKey
		if info, ok := catalog.SkillAt(r.SkillIndex); ok {
			skill = info.Name
		}
		out = append(out, HistoryEntryDTO{
			Kind:         r.Kind,
			Skill:        skill,
			SkillIndex:   r.SkillIndex,
			Activity:     r.Activity,
			Duration:     r.Duration,
			PointsEarned: r.PointsEarned,
			StreakBonus:  r.StreakBonus,
			XPDelta:      r.XPDelta,
			LevelAfter:   r.LevelAfter,
			Revision:     r.Revision,
			Timestamp:    r.Timestamp,
		})
	}
	return out
}
