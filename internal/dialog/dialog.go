// Package dialog 活动选择对话框（UI 边界）：列出技能下的活动，收集时长或自定义名称，
// 确认后产出一个 (活动名, 时长, 是否自定义) 提交，取消则不产出。
package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuqie6/WrestleQuest/internal/catalog"
)

var (
	ErrUnknownSkill    = errors.New("未知技能")
	ErrUnknownActivity = errors.New("未知活动")
	ErrInvalidDuration = errors.New("时长无效")
)

// DurationSteps 计时活动提供的可选时长档位数
const DurationSteps = 10

// Option 对话框中的一个可选活动（Number 从 1 开始）
type Option struct {
	Number   int
	Activity catalog.ActivityDefinition
}

// Label 展示文本
func (o Option) Label() string {
	switch {
	case o.Activity.IsCustom():
		return o.Activity.Name + " (自定义名称，1 点)"
	case o.Activity.IsOneOff():
		return o.Activity.Name + " (1 点)"
	default:
		return fmt.Sprintf("%s (每 %d 分钟 1 点)", o.Activity.Name, o.Activity.UnitMinutes)
	}
}

// Selection 用户在对话框中的输入
type Selection struct {
	Choice     string // 活动名或序号
	Duration   int    // 分钟，仅计时活动使用
	CustomName string // 仅自定义活动使用
	Cancel     bool
}

// Submission 确认后交给进度引擎的参数；Custom=true 时 Activity 是用户填写的名称
type Submission struct {
	Activity string
	Duration int
	Custom   bool
}

// Options 列出技能下的全部活动
func Options(skillName string) ([]Option, error) {
	list := catalog.ActivitiesFor(skillName)
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSkill, skillName)
	}
	out := make([]Option, len(list))
	for i, a := range list {
		out[i] = Option{Number: i + 1, Activity: a}
	}
	return out, nil
}

// DurationChoices 计时活动的时长档位：单位时长的 1~10 倍；其余活动无档位
func DurationChoices(def catalog.ActivityDefinition) []int {
	if def.UnitMinutes <= 0 {
		return nil
	}
	out := make([]int, DurationSteps)
	for i := range out {
		out[i] = def.UnitMinutes * (i + 1)
	}
	return out
}

// Resolve 按序号或名称（忽略大小写）解析活动
func Resolve(skillName, choice string) (catalog.ActivityDefinition, error) {
	opts, err := Options(skillName)
	if err != nil {
		return catalog.ActivityDefinition{}, err
	}
	c := strings.TrimSpace(choice)
	if n, err := strconv.Atoi(c); err == nil {
		if n >= 1 && n <= len(opts) {
			return opts[n-1].Activity, nil
		}
		return catalog.ActivityDefinition{}, fmt.Errorf("%w: 序号 %d 超出范围", ErrUnknownActivity, n)
	}
	for _, o := range opts {
		if strings.EqualFold(o.Activity.Name, c) {
			return o.Activity, nil
		}
	}
	return catalog.ActivityDefinition{}, fmt.Errorf("%w: %s", ErrUnknownActivity, choice)
}

// Submit 校验输入并产出提交；ok=false 表示取消
func Submit(skillName string, sel Selection) (Submission, bool, error) {
	if sel.Cancel {
		return Submission{}, false, nil
	}
	def, err := Resolve(skillName, sel.Choice)
	if err != nil {
		return Submission{}, false, err
	}

	switch {
	case def.IsCustom():
		name := strings.TrimSpace(sel.CustomName)
		if name == "" {
			name = def.Name
		}
		return Submission{Activity: name, Duration: 0, Custom: true}, true, nil
	case def.IsOneOff():
		return Submission{Activity: def.Name, Duration: 0}, true, nil
	default:
		if sel.Duration < 0 {
			return Submission{}, false, fmt.Errorf("%w: %d", ErrInvalidDuration, sel.Duration)
		}
		return Submission{Activity: def.Name, Duration: sel.Duration}, true, nil
	}
}
