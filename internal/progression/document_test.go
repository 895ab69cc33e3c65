package progression

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	p := NewUserProgress()
	p.Name = "Alex"
	p.Quest = "State champion"
	p.XP = 650
	p.Level = 2
	last := time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)
	p.LastActivityDate = &last
	p.ConsecutiveDays = 4
	p.Skills[3].Points = 2
	p.Skills[3].Rank = 3
	p.Skills[3].TotalPoints = 12
	p.Skills[3].IsLevelingUp = true

	data, err := EncodeDocument(p)
	require.NoError(t, err)

	got, err := DecodeDocument(data)
	require.NoError(t, err)
	require.NotNil(t, got.LastActivityDate)
	assert.True(t, last.Equal(*got.LastActivityDate))
	got.LastActivityDate = p.LastActivityDate
	assert.Equal(t, p, got)
}

func TestDocumentUsesWireNames(t *testing.T) {
	data, err := EncodeDocument(NewUserProgress())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"name", "quest", "level", "xp", "lastActivityDate", "consecutiveDays", "skills"} {
		assert.Contains(t, raw, key)
	}
	assert.Nil(t, raw["lastActivityDate"])
	skills := raw["skills"].([]any)
	require.Len(t, skills, 7)
	first := skills[0].(map[string]any)
	for _, key := range []string{"name", "points", "color", "xpValue", "rank", "totalPoints", "isLevelingUp"} {
		assert.Contains(t, first, key)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	good, err := EncodeDocument(NewUserProgress())
	require.NoError(t, err)

	mutate := func(fn func(m map[string]any)) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal(good, &m))
		fn(m)
		out, err := json.Marshal(m)
		require.NoError(t, err)
		return out
	}
	skill := func(m map[string]any, i int) map[string]any {
		return m["skills"].([]any)[i].(map[string]any)
	}

	cases := map[string][]byte{
		"not json":          []byte("{"),
		"missing xp":        mutate(func(m map[string]any) { delete(m, "xp") }),
		"missing last date": mutate(func(m map[string]any) { delete(m, "lastActivityDate") }),
		"bad last date":     mutate(func(m map[string]any) { m["lastActivityDate"] = "yesterday" }),
		"level zero":        mutate(func(m map[string]any) { m["level"] = 0 }),
		"six skills":        mutate(func(m map[string]any) { m["skills"] = m["skills"].([]any)[:6] }),
		"skill missing rank": mutate(func(m map[string]any) {
			delete(skill(m, 2), "rank")
		}),
		"points out of range": mutate(func(m map[string]any) {
			skill(m, 0)["points"] = 5
		}),
		"skills reordered": mutate(func(m map[string]any) {
			s := m["skills"].([]any)
			s[0], s[1] = s[1], s[0]
		}),
	}
	for name, data := range cases {
		_, err := DecodeDocument(data)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrMalformedDocument), "%s: %v", name, err)
	}
}

func TestDecodeAcceptsZeroValues(t *testing.T) {
	// 0 / false / "" 都是合法值，不能被当成缺失
	data, err := EncodeDocument(NewUserProgress())
	require.NoError(t, err)
	got, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, "", got.Name)
	assert.Nil(t, got.LastActivityDate)
}

func TestDecodeAcceptsLongStoredText(t *testing.T) {
	// 长度上限只约束资料编辑，已存储的文档不因此判为损坏
	p := NewUserProgress()
	p.Name = strings.Repeat("x", MaxProfileTextLen*3)
	p.Quest = strings.Repeat("名", MaxProfileTextLen+1)
	data, err := EncodeDocument(p)
	require.NoError(t, err)

	got, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Quest, got.Quest)
}

func TestProfileInputValidation(t *testing.T) {
	long := strings.Repeat("名", MaxProfileTextLen+1)
	ok := strings.Repeat("名", MaxProfileTextLen)
	padded := "  Alex  "

	assert.Error(t, ProfileInput{Name: &long}.Validate())
	assert.NoError(t, ProfileInput{Name: &ok}.Validate())
	assert.NoError(t, ProfileInput{}.Validate())

	norm := ProfileInput{Name: &padded}.Normalize()
	assert.Equal(t, "Alex", *norm.Name)
	assert.Equal(t, "  Alex  ", padded)
}
