package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCorrectionCounts(t *testing.T) {
	m := NewMemory(nil)

	for i := 1; i <= 3; i++ {
		r, ok := m.RecordCorrection("Serum x64", []string{"Bass"})
		require.True(t, ok)
		assert.Equal(t, i, r.Count)
	}

	r, ok := m.Lookup("Serum")
	require.True(t, ok)
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, []string{"Bass"}, r.Tags)

	r, _ = m.RecordCorrection("Serum (2)", []string{"Lead"})
	assert.Equal(t, Rule{Tags: []string{"Lead"}, Count: 1}, r)
}

func TestRecordCorrectionOrderIndependent(t *testing.T) {
	m := NewMemory(nil)
	m.RecordCorrection("Diva", []string{"Synth", "Pads"})
	r, _ := m.RecordCorrection("Diva", []string{"Pads", "Synth"})
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, []string{"Pads", "Synth"}, r.Tags, "latest order is kept")
}

func TestRecordCorrectionIgnoresEmptyKey(t *testing.T) {
	m := NewMemory(nil)
	_, ok := m.RecordCorrection("***", []string{"Bass"})
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestStrongThreshold(t *testing.T) {
	m := NewMemory(map[string]Rule{
		"weak":   {Tags: []string{"Bass"}, Count: 1},
		"strong": {Tags: []string{"Bass"}, Count: 2},
	})

	_, ok := m.Strong("Weak")
	assert.False(t, ok)

	r, ok := m.Strong("Strong")
	require.True(t, ok)
	assert.Equal(t, []string{"Bass"}, r.Tags)
}

func TestForgetAndSnapshot(t *testing.T) {
	m := NewMemory(nil)
	m.RecordCorrection("Ott", []string{"FX - Dynamics"})
	m.RecordCorrection("Diva", []string{"Synth"})

	assert.Equal(t, []string{"diva", "ott"}, m.Keys())

	snap := m.Snapshot()
	snap["ott"].Tags[0] = "mutated"
	r, _ := m.Get("ott")
	assert.Equal(t, "FX - Dynamics", r.Tags[0])

	assert.True(t, m.Forget("ott"))
	assert.False(t, m.Forget("ott"))
	_, ok := m.Get("ott")
	assert.False(t, ok)
}
