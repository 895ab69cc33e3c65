package dialog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompt 在终端上交互式地完成一次选择；空输入或 q 表示取消
func Prompt(in io.Reader, out io.Writer, skillName string) (Submission, bool, error) {
	opts, err := Options(skillName)
	if err != nil {
		return Submission{}, false, err
	}
	r := bufio.NewReader(in)

	fmt.Fprintf(out, "记录 %s 活动：\n", skillName)
	for _, o := range opts {
		fmt.Fprintf(out, "  %d. %s\n", o.Number, o.Label())
	}
	choice, ok := ask(r, out, "选择活动 (序号/名称，q 取消): ")
	if !ok {
		return Submission{}, false, nil
	}
	def, err := Resolve(skillName, choice)
	if err != nil {
		return Submission{}, false, err
	}

	sel := Selection{Choice: def.Name}
	switch {
	case def.IsCustom():
		name, ok := ask(r, out, "活动名称: ")
		if !ok {
			return Submission{}, false, nil
		}
		sel.CustomName = name
	case def.IsOneOff():
	default:
		steps := DurationChoices(def)
		labels := make([]string, len(steps))
		for i, m := range steps {
			labels[i] = strconv.Itoa(m)
		}
		fmt.Fprintf(out, "可选时长（分钟）: %s\n", strings.Join(labels, " "))
		raw, ok := ask(r, out, "时长（分钟）: ")
		if !ok {
			return Submission{}, false, nil
		}
		d, err := strconv.Atoi(raw)
		if err != nil {
			return Submission{}, false, fmt.Errorf("%w: %s", ErrInvalidDuration, raw)
		}
		sel.Duration = d
	}
	return Submit(skillName, sel)
}

func ask(r *bufio.Reader, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", false
	}
	if line == "" || strings.EqualFold(line, "q") {
		return "", false
	}
	return line, true
}
