package keywords

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `[GLOBAL_FILTER]
广告
[WORD_GROUPS]
+特斯拉
涨价,降价
!二手
@5
`

func TestParseSections(t *testing.T) {
	rules := Parse(sampleRules)

	require.Len(t, rules.Groups, 1)
	g := rules.Groups[0]
	assert.Equal(t, []string{"特斯拉"}, g.Required)
	assert.Equal(t, []string{"涨价", "降价"}, g.Normal)
	assert.Equal(t, []string{"二手"}, g.Filters)
	assert.Equal(t, "涨价 降价", g.GroupKey)
	assert.Equal(t, 5, g.MaxCount)

	assert.Equal(t, []string{"广告"}, rules.GlobalFilters)
	assert.Equal(t, []string{"二手"}, rules.FilterWords)
}

func TestParseMultipleGroups(t *testing.T) {
	rules := Parse(`# comment
AI
芯片

+华为
手机
!爆料
`)
	require.Len(t, rules.Groups, 2)
	assert.Equal(t, "AI 芯片", rules.Groups[0].GroupKey)
	assert.Equal(t, "手机", rules.Groups[1].GroupKey)
	assert.Equal(t, 0, rules.Groups[0].MaxCount)
}

func TestParseRequiredOnlyGroupKey(t *testing.T) {
	rules := Parse("+特斯拉\n+马斯克\n")
	require.Len(t, rules.Groups, 1)
	assert.Equal(t, "特斯拉 马斯克", rules.Groups[0].GroupKey)
}

func TestParseGlobalFilterIgnoresPrefixedTokens(t *testing.T) {
	rules := Parse("[GLOBAL_FILTER]\n广告\n!忽略\n+忽略\n@3\n")
	assert.Equal(t, []string{"广告"}, rules.GlobalFilters)
	assert.Empty(t, rules.Groups)
}

func TestParseCapOnlyGroupDropped(t *testing.T) {
	rules := Parse("@5\n!排除\n")
	assert.Empty(t, rules.Groups)
}

func TestMatchGroup(t *testing.T) {
	rules := Parse(sampleRules)

	idx, ok := rules.MatchGroup("特斯拉宣布降价5万")
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = rules.MatchGroup("特斯拉二手车")
	assert.False(t, ok, "group filter word should reject")

	_, ok = rules.MatchGroup("广告：特斯拉促销")
	assert.False(t, ok, "global filter should reject")

	_, ok = rules.MatchGroup("比亚迪降价")
	assert.False(t, ok, "required word missing")

	_, ok = rules.MatchGroup("特斯拉开新店")
	assert.False(t, ok, "no normal word present")
}

func TestMatchCaseInsensitive(t *testing.T) {
	rules := Parse("Tesla\n")
	assert.True(t, rules.Matches("TESLA hits new high"))
	assert.True(t, rules.Matches("tesla hits new high"))
}

func TestMatchFirstGroupWins(t *testing.T) {
	rules := Parse("AI\n\n芯片\n")
	idx, ok := rules.MatchGroup("AI芯片双热点")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestMatchNoRulesAcceptsAll(t *testing.T) {
	rules := &Rules{}
	idx, ok := rules.MatchGroup("任意标题")
	require.True(t, ok)
	assert.Equal(t, -1, idx)

	_, ok = rules.MatchGroup("   ")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	rules, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	assert.Empty(t, rules.Groups)
	assert.Empty(t, rules.GlobalFilters)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frequency_words.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	rules, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, rules.Groups, 1)
}
