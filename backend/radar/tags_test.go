package radar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTechs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"ReactJS, Node.js", []string{"ReactJS", "Node.js"}},
		{"  go ,, Go,rust ", []string{"go", "rust"}},
		{"", []string{}},
		{" , ", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTechs(tt.raw), "ParseTechs(%q)", tt.raw)
	}
}

func TestTagSetAccepts(t *testing.T) {
	t.Run("empty set accepts everything", func(t *testing.T) {
		var empty TagSet
		assert.True(t, empty.Accepts(nil))
		assert.True(t, empty.Accepts([]string{"python"}))
		assert.True(t, NewTagSet([]string{" ", ""}).Empty())
	})

	t.Run("or semantics", func(t *testing.T) {
		s := NewTagSet([]string{"node", "react"})
		assert.True(t, s.Accepts([]string{"react"}))
		assert.True(t, s.Accepts([]string{"go", "node"}))
		assert.False(t, s.Accepts([]string{"go"}))
	})

	t.Run("non-empty set rejects a record without techs", func(t *testing.T) {
		s := NewTagSet([]string{"node"})
		assert.False(t, s.Accepts(nil))
		assert.False(t, s.Accepts([]string{}))
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		s := NewTagSet([]string{"Node.js"})
		assert.True(t, s.Accepts([]string{" node.JS "}))
		assert.True(t, s.Has("NODE.JS"))
	})
}

func TestTagSetKeys(t *testing.T) {
	s := NewTagSet([]string{"Rust", "go", "rust"})
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"go", "rust"}, s.Keys())
	assert.Equal(t, "go,rust", s.String())
	assert.True(t, s.Equal(NewTagSet([]string{"GO", "RUST"})))
	assert.False(t, s.Equal(NewTagSet([]string{"go"})))
	assert.Equal(t, []string{"go", "rust"}, TagKeys([]string{"Rust", "Go"}))
}
