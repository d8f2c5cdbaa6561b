package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	assert.False(t, d.Contains("c1"))

	d.Add("c1", Member{Name: "alice", Room: "r1"})
	m, ok := d.Get("c1")
	assert.True(t, ok)
	assert.Equal(t, Member{Name: "alice", Room: "r1"}, m)
	assert.Equal(t, 1, d.Len())

	removed, ok := d.Remove("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", removed.Name)
	_, ok = d.Remove("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, d.Len())
}
