package util_test

import (
	"testing"

	"github.com/kashguard/go-evidence/internal/util"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Skip  *int `wire:"-"`
	Name  string
	Ptr   *int
	Iface interface{}
}

func TestIsStructInitialized(t *testing.T) {
	n := 1
	assert.NoError(t, util.IsStructInitialized(&sample{Ptr: &n, Iface: 1}))
	assert.Error(t, util.IsStructInitialized(&sample{Iface: 1}))
	assert.Error(t, util.IsStructInitialized(&sample{Ptr: &n}))
	assert.Error(t, util.IsStructInitialized(42))
}
