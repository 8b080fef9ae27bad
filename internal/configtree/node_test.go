package configtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapNode(kv ...interface{}) Node {
	order := make([]string, 0, len(kv)/2)
	fields := make(map[string]Node, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k := kv[i].(string)
		v := kv[i+1].(Node)
		order = append(order, k)
		fields[k] = v
	}
	return Map(order, fields)
}

func TestMergeScalarOverlayWins(t *testing.T) {
	base := mapNode("temperature", Scalar(0.2))
	overlay := mapNode("temperature", Scalar(0.5))
	got := Merge(base, overlay)
	v, _ := got.Get("temperature").Float()
	assert.Equal(t, 0.5, v)
}

func TestMergeRecursesIntoMaps(t *testing.T) {
	base := mapNode("llm_config", mapNode("agents", mapNode("coder", mapNode("temperature", Scalar(0.2)))))
	overlay := mapNode("llm_config", mapNode("agents", mapNode("coder", mapNode("model", Scalar("gpt-5")))))
	got := Merge(base, overlay)
	temp, ok := got.Get("llm_config.agents.coder.temperature").Float()
	require.True(t, ok)
	assert.Equal(t, 0.2, temp)
	assert.Equal(t, "gpt-5", got.Get("llm_config.agents.coder.model").String())
}

func TestMergeListReplacesWholesale(t *testing.T) {
	base := mapNode("target_files", List([]Node{Scalar("a.py"), Scalar("b.py")}))
	overlay := mapNode("target_files", List([]Node{Scalar("c.py")}))
	got := Merge(base, overlay)
	items := got.Get("target_files").Items()
	require.Len(t, items, 1)
	assert.Equal(t, "c.py", items[0].String())
}

func TestMergeEmptyOverlayIsIdentity(t *testing.T) {
	base := mapNode("a", Scalar(1))
	got := Merge(base, NewMap())
	assert.True(t, Equal(base, got))
}

func TestMergeAssociative(t *testing.T) {
	base := mapNode("a", Scalar(1), "b", mapNode("x", Scalar(1)))
	a := mapNode("c", Scalar(2))
	b := mapNode("d", Scalar(3))

	left := Merge(Merge(base, a), b)
	right := Merge(base, Merge(a, b))
	assert.True(t, Equal(left, right))
}

func TestMergePrecedenceChain(t *testing.T) {
	// base.llm_config.agents.coder.temperature=0.2
	// system overlay sets 0.5
	// app overlay sets 0
	base := mapNode("llm_config", mapNode("agents", mapNode("coder", mapNode("temperature", Scalar(0.2)))))
	sys := mapNode("llm_config", mapNode("agents", mapNode("coder", mapNode("temperature", Scalar(0.5)))))
	app := mapNode("llm_config", mapNode("agents", mapNode("coder", mapNode("temperature", Scalar(0)))))

	effective := MergeAll(base, sys, app)
	temp, ok := effective.Get("llm_config.agents.coder.temperature").Float()
	require.True(t, ok)
	assert.Equal(t, 0.0, temp)
}

func TestGetAbsentForMissingPath(t *testing.T) {
	base := mapNode("a", Scalar(1))
	assert.True(t, base.Get("a.b.c").IsAbsent())
	assert.True(t, base.Get("missing").IsAbsent())
}

func TestNullOverlayReplaces(t *testing.T) {
	base := mapNode("a", Scalar(1))
	overlay := mapNode("a", Null)
	got := Merge(base, overlay)
	assert.True(t, got.Get("a").IsNull())
}

func TestRoundTripInterface(t *testing.T) {
	src := map[string]interface{}{
		"name": "coder",
		"nested": map[string]interface{}{
			"temperature": 0.2,
			"list":        []interface{}{"a", "b"},
		},
	}
	n := FromInterface(src)
	out := ToInterface(n)
	n2 := FromInterface(out)
	assert.True(t, Equal(n, n2))
}

func TestDecodeIntoTaggedStruct(t *testing.T) {
	type policy struct {
		Enabled     bool `mapstructure:"enabled"`
		MaxAttempts int  `mapstructure:"max_attempts"`
	}
	n := mapNode("enabled", Scalar(true), "max_attempts", Scalar(3))

	got := policy{MaxAttempts: 5}
	require.NoError(t, Decode(n, &got))
	assert.True(t, got.Enabled)
	assert.Equal(t, 3, got.MaxAttempts)
}

func TestDecodeLeavesUnsetFieldsAtDefault(t *testing.T) {
	type policy struct {
		Enabled     bool `mapstructure:"enabled"`
		MaxAttempts int  `mapstructure:"max_attempts"`
	}
	n := mapNode("enabled", Scalar(false))

	got := policy{MaxAttempts: 5}
	require.NoError(t, Decode(n, &got))
	assert.False(t, got.Enabled)
	assert.Equal(t, 5, got.MaxAttempts)
}
