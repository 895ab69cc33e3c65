package dto

// 本包承载对外契约（HTTP JSON / CLI --json 输出），不放持久化细节。

type SkillDTO struct {
	Index            int     `json:"index"`
	Key              string  `json:"key"`
	Name             string  `json:"name"`
	Color            string  `json:"color"`
	Points           int     `json:"points"`
	Rank             int     `json:"rank"`
	TotalPoints      int     `json:"total_points"`
	XPValue          int     `json:"xp_value"`
	IsLevelingUp     bool    `json:"is_leveling_up"`
	MaxDisplayPoints int     `json:"max_display_points"`
	BarPercent       float64 `json:"bar_percent"`
}

type ProgressDTO struct {
	UserID           string     `json:"user_id"`
	Name             string     `json:"name"`
	Quest            string     `json:"quest"`
	Level            int        `json:"level"`
	Title            string     `json:"title"`
	XP               int        `json:"xp"`
	XPToNext         int        `json:"xp_to_next"`
	ProgressPercent  float64    `json:"progress_percent"`
	LastActivityDate *string    `json:"last_activity_date"`
	ConsecutiveDays  int        `json:"consecutive_days"`
	Skills           []SkillDTO `json:"skills"`
	Revision         int64      `json:"revision"`
	WriteState       string     `json:"write_state"`
	LastError        string     `json:"last_error,omitempty"`
}

type ApplyResultDTO struct {
	Progress     ProgressDTO `json:"progress"`
	Activity     string      `json:"activity"`
	Custom       bool        `json:"custom"`
	CatalogMatch bool        `json:"catalog_match"`
	BasePoints   int         `json:"base_points"`
	StreakBonus  int         `json:"streak_bonus"`
	PointsEarned int         `json:"points_earned"`
	RankUps      int         `json:"rank_ups"`
	XPGained     int         `json:"xp_gained"`
	LevelBefore  int         `json:"level_before"`
	LevelAfter   int         `json:"level_after"`
}

type UndoResultDTO struct {
	Progress    ProgressDTO `json:"progress"`
	Applied     bool        `json:"applied"`
	RankDown    bool        `json:"rank_down"`
	XPRemoved   int         `json:"xp_removed"`
	LevelBefore int         `json:"level_before"`
	LevelAfter  int         `json:"level_after"`
}

type ActivityDTO struct {
	Name        string `json:"name"`
	UnitMinutes int    `json:"unit_minutes"`
	Kind        string `json:"kind"` // timed / one_off / custom
}

type CatalogSkillDTO struct {
	Index      int           `json:"index"`
	Key        string        `json:"key"`
	Name       string        `json:"name"`
	Color      string        `json:"color"`
	XPValue    int           `json:"xp_value"`
	Activities []ActivityDTO `json:"activities"`
}

type CatalogDTO struct {
	Version int               `json:"version"`
	Skills  []CatalogSkillDTO `json:"skills"`
}

type HistoryEntryDTO struct {
	Kind         string `json:"kind"`
	Skill        string `json:"skill"`
	SkillIndex   int    `json:"skill_index"`
	Activity     string `json:"activity,omitempty"`
	Duration     int    `json:"duration"`
	PointsEarned int    `json:"points_earned"`
	StreakBonus  int    `json:"streak_bonus"`
	XPDelta      int    `json:"xp_delta"`
	LevelAfter   int    `json:"level_after"`
	Revision     int64  `json:"revision"`
	Timestamp    int64  `json:"timestamp"`
}

type SkillTotalDTO struct {
	Key    string `json:"key"`
	Points int    `json:"points"` // 流水净点数（撤销计 -1）
	Events int64  `json:"events"`
}

type UserListDTO struct {
	Users []string `json:"users"`
}

type ProfileRequestDTO struct {
	Name  *string `json:"name"`
	Quest *string `json:"quest"`
}

// LogRequestDTO custom=true 时 activity 只作为自定义名称记录，固定 1 点
type LogRequestDTO struct {
	Activity string `json:"activity" validate:"required,max=200"`
	Duration int    `json:"duration" validate:"min=0"`
	Custom   bool   `json:"custom"`
}
