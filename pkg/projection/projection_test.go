package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllIncludesEverything(t *testing.T) {
	proj := All()
	assert.True(t, proj.IncludesAll())
	assert.Equal(t, Included, proj.Decide([]uint32{1}))
	assert.Equal(t, Included, proj.Decide([]uint32{7, 3, 9}))
}

func TestEmptyProjectionExcludesEverything(t *testing.T) {
	var proj Projection
	assert.False(t, proj.IncludesAll())
	assert.Equal(t, Excluded, proj.Decide([]uint32{1}))
}

func TestSubtreeInclusion(t *testing.T) {
	proj := Of(NewPath(2))
	assert.Equal(t, Included, proj.Decide([]uint32{2}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3, 4}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{1}))
}

func TestNestedPath(t *testing.T) {
	proj := Of(NewPath(2, 3))
	// The ancestor is kept so the projected descendant has a home.
	assert.Equal(t, Included, proj.Decide([]uint32{2}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3, 5}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{2, 4}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{1}))
}

func TestExistenceOnly(t *testing.T) {
	proj := Of(ExistencePath(2))
	assert.Equal(t, Existence, proj.Decide([]uint32{2}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{2, 3}))
}

func TestExistenceOverriddenByDeeperPath(t *testing.T) {
	proj := Of(ExistencePath(2), NewPath(2, 3))
	// The deeper concrete path wins over the existence marker.
	assert.Equal(t, Included, proj.Decide([]uint32{2}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{2, 4}))
}

func TestSpecProjectionScenario(t *testing.T) {
	// Projection {[1], [2,3]} over fields {1, 2.3, 2.4}.
	proj := Of(NewPath(1), NewPath(2, 3))
	assert.Equal(t, Included, proj.Decide([]uint32{1}))
	assert.Equal(t, Included, proj.Decide([]uint32{2}))
	assert.Equal(t, Included, proj.Decide([]uint32{2, 3}))
	assert.Equal(t, Excluded, proj.Decide([]uint32{2, 4}))
}
