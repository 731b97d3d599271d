package pipeline_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := pipeline.NewRing(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Add(id)
	}
	assert.False(t, r.Seen("a"))
	assert.True(t, r.Seen("b"))
	assert.True(t, r.Seen("d"))
	assert.Equal(t, []string{"b", "c", "d"}, r.IDs())
	assert.Equal(t, 3, r.Len())
}

func TestRing_AddKnownIsNoop(t *testing.T) {
	r := pipeline.NewRing(2)
	r.Add("a")
	r.Add("a")
	r.Add("b")
	assert.Equal(t, []string{"a", "b"}, r.IDs())
}

func TestRing_RestoreKeepsNewest(t *testing.T) {
	r := pipeline.NewRing(2)
	r.Add("zzz")
	r.Restore([]string{"1", "2", "3"})
	assert.Equal(t, []string{"2", "3"}, r.IDs())
	assert.False(t, r.Seen("zzz"))
	assert.False(t, r.Seen("1"))
}

func TestRing_DefaultCapacity(t *testing.T) {
	assert.Equal(t, pipeline.DefaultDedupCapacity, pipeline.NewRing(0).Cap())
}
