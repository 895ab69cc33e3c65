package progression

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

// MaxProfileTextLen 名称与目标的最大字符数
const MaxProfileTextLen = 120

var validate = validator.New()

// nullableTime 区分字段缺失与显式 null
type nullableTime struct {
	Present bool
	Time    *time.Time
}

func (n *nullableTime) UnmarshalJSON(b []byte) error {
	n.Present = true
	s := strings.TrimSpace(string(b))
	if s == "null" {
		n.Time = nil
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return err
	}
	n.Time = &t
	return nil
}

type skillDocument struct {
	Name         *string `json:"name" validate:"required"`
	Points       *int    `json:"points" validate:"required,min=0,max=4"`
	Color        *string `json:"color" validate:"required"`
	XPValue      *int    `json:"xpValue" validate:"required,min=0"`
	Rank         *int    `json:"rank" validate:"required,min=1"`
	TotalPoints  *int    `json:"totalPoints" validate:"required,min=0"`
	IsLevelingUp *bool   `json:"isLevelingUp" validate:"required"`
}

type progressDocument struct {
	Name             *string         `json:"name" validate:"required"`
	Quest            *string         `json:"quest" validate:"required"`
	Level            *int            `json:"level" validate:"required,min=1"`
	XP               *int            `json:"xp" validate:"required,min=0"`
	LastActivityDate nullableTime    `json:"lastActivityDate"`
	ConsecutiveDays  *int            `json:"consecutiveDays" validate:"required,min=0"`
	Skills           []skillDocument `json:"skills" validate:"required,len=7,dive"`
}

// EncodeDocument 序列化为持久化文档
func EncodeDocument(p UserProgress) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("序列化进度失败: %w", err)
	}
	return data, nil
}

// DecodeDocument 解析并校验持久化文档；任何缺字段或越界都返回 ErrMalformedDocument
func DecodeDocument(data []byte) (UserProgress, error) {
	var doc progressDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return UserProgress{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return UserProgress{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if !doc.LastActivityDate.Present {
		return UserProgress{}, fmt.Errorf("%w: 缺少 lastActivityDate", ErrMalformedDocument)
	}

	out := UserProgress{
		Name:             *doc.Name,
		Quest:            *doc.Quest,
		Level:            *doc.Level,
		XP:               *doc.XP,
		LastActivityDate: doc.LastActivityDate.Time,
		ConsecutiveDays:  *doc.ConsecutiveDays,
	}
	skills := catalog.Skills()
	for i, sd := range doc.Skills {
		if *sd.Name != skills[i].Name {
			return UserProgress{}, fmt.Errorf("%w: 第 %d 个技能应为 %s，实际为 %s", ErrMalformedDocument, i, skills[i].Name, *sd.Name)
		}
		out.Skills[i] = SkillState{
			Name:         *sd.Name,
			Points:       *sd.Points,
			Color:        *sd.Color,
			XPValue:      *sd.XPValue,
			Rank:         *sd.Rank,
			TotalPoints:  *sd.TotalPoints,
			IsLevelingUp: *sd.IsLevelingUp,
		}
	}
	return out, nil
}

// ProfileInput 名称/目标修改请求
type ProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,max=120"`
	Quest *string `json:"quest" validate:"omitempty,max=120"`
}

// Normalize 去除首尾空白
func (in ProfileInput) Normalize() ProfileInput {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		in.Name = &v
	}
	if in.Quest != nil {
		v := strings.TrimSpace(*in.Quest)
		in.Quest = &v
	}
	return in
}

// Validate 校验长度
func (in ProfileInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("资料校验失败: %w", err)
	}
	return nil
}
