package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRangeKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("b", 1)
	r.Register("a", 2)
	r.Register("c", 3)
	r.Register("b", 4)

	var names []string
	var vals []any
	r.Range(func(name string, mod any) bool {
		names = append(names, name)
		vals = append(vals, mod)
		return true
	})
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.Equal(t, []any{4, 2, 3}, vals)
	assert.Equal(t, names, r.Names())
}

func TestRegistryRangeStops(t *testing.T) {
	r := NewRegistry()
	r.Register("a", 1)
	r.Register("b", 2)
	seen := 0
	r.Range(func(string, any) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestLoaderFunc(t *testing.T) {
	var got string
	var l NodeLoader = LoaderFunc(func(p string, _ IgnoreSet, parent string) (bool, error) {
		got = p + "|" + parent
		return true, nil
	})
	ok, err := l.LoadCustomNode("x", nil, "custom_nodes")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x|custom_nodes", got)
}
