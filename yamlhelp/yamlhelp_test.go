package yamlhelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func TestSingle(t *testing.T) {
	m := Single("only", 42)
	require.Equal(t, 1, m.Len())
	v, ok := m.Get("only")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestKeysOrder(t *testing.T) {
	m := orderedmap.New[string, int]()
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)
	assert.Equal(t, []string{"b", "a", "c"}, Keys(m))
	assert.Nil(t, Keys[string, int](nil))
}

func TestFirst(t *testing.T) {
	m := orderedmap.New[string, int]()
	m.Set("z", 26)
	m.Set("a", 1)
	key, value, ok := First(m)
	require.True(t, ok)
	assert.Equal(t, "z", key)
	assert.Equal(t, 26, value)

	_, _, ok = First[string, int](nil)
	assert.False(t, ok)
	_, _, ok = First(orderedmap.New[string, int]())
	assert.False(t, ok)
}

func TestGetNilSafe(t *testing.T) {
	_, ok := Get[string, int](nil, "x")
	assert.False(t, ok)

	m := Single("x", 7)
	v, ok := Get(m, "x")
	require.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = Get(m, "y")
	assert.False(t, ok)
}
