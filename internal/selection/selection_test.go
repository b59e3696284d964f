package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapLifecycle(t *testing.T) {
	m := New()

	m.Set("c1", Public)
	assert.Equal(t, Public, m.Get("c1"))
	assert.False(t, m.IsViewing("c1", Public))

	m.Set("c1", "u2")
	assert.Equal(t, "u2", m.Get("c1"))
	assert.True(t, m.IsViewing("c1", "u2"))
	assert.False(t, m.IsViewing("c1", "u3"))
	assert.Equal(t, 1, m.Len())

	m.Delete("c1")
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.IsViewing("c1", "u2"))
}
