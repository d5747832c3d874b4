package pprofwire

import (
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSentinelAndInterning(t *testing.T) {
	idx := NewIndex("")
	assert.EqualValues(t, 0, idx.Get(""))
	a := idx.Get("main")
	b := idx.Get("helper")
	again := idx.Get("main")
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{"", "main", "helper"}, idx.Values())
}

func TestBuilderEncodeRoundTripsThroughGooglePprof(t *testing.T) {
	b := NewBuilder([]ValueType{{Type: "samples", Unit: "count"}}, "samples")
	leaf := b.InternFrame("com.example.Leaf.run")
	root := b.InternFrame("com.example.Root.main")
	b.AddSample([]int64{leaf, root}, []int64{3}, []Label{{Key: "thread", Str: "main"}})
	b.SetTimeNanos(1000)
	b.SetDurationNanos(500)
	b.AddComment("converted")

	raw := b.Encode()
	require.NotEmpty(t, raw)

	p, err := profile.ParseData(raw)
	require.NoError(t, err)
	require.Len(t, p.Sample, 1)
	assert.EqualValues(t, 3, p.Sample[0].Value[0])
	require.Len(t, p.Sample[0].Location, 2)
	assert.Equal(t, "com.example.Leaf.run", p.Sample[0].Location[0].Line[0].Function.Name)
	assert.Equal(t, "com.example.Root.main", p.Sample[0].Location[1].Line[0].Function.Name)
	assert.Equal(t, "main", p.Sample[0].Label["thread"][0])
	assert.EqualValues(t, 1000, p.TimeNanos)
	assert.EqualValues(t, 500, p.DurationNanos)
	require.Len(t, p.SampleType, 1)
	assert.Equal(t, "samples", p.SampleType[0].Type)
}

func TestBuilderEncodeGzip(t *testing.T) {
	b := NewBuilder([]ValueType{{Type: "samples", Unit: "count"}}, "samples")
	leaf := b.InternFrame("leaf")
	b.AddSample([]int64{leaf}, []int64{1}, nil)

	gz, err := b.EncodeGzip()
	require.NoError(t, err)

	p, err := profile.ParseData(gz)
	require.NoError(t, err)
	require.Len(t, p.Sample, 1)
}
