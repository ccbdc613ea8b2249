package typecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bitkeep/internal/models"
)

func defs() []models.BitTypeDefinition {
	return []models.BitTypeDefinition{
		{ID: "task", Name: "Task", IconName: "check", Properties: []models.PropertyDefinition{{ID: "title", Name: "Title", Type: models.PropText}}},
		{ID: "contact", Name: "Contact", IconName: "user"},
	}
}

func TestPopulateAndLookup(t *testing.T) {
	c := New()
	assert.False(t, c.Loaded())
	_, ok := c.All()
	assert.False(t, ok)

	require.True(t, c.Populate(c.Generation(), defs()))
	assert.True(t, c.Loaded())

	d, ok := c.Lookup("task")
	require.True(t, ok)
	assert.Equal(t, "Task", d.Name)

	all, ok := c.All()
	require.True(t, ok)
	require.Len(t, all, 2)
	assert.Equal(t, "task", all[0].ID)
	assert.Equal(t, "contact", all[1].ID)

	_, ok = c.Lookup("ghost")
	assert.False(t, ok)
}

func TestInvalidateClears(t *testing.T) {
	c := New()
	require.True(t, c.Populate(c.Generation(), defs()))
	c.Invalidate()
	assert.False(t, c.Loaded())
	_, ok := c.Lookup("task")
	assert.False(t, ok)
}

func TestStalePopulateIsDiscarded(t *testing.T) {
	c := New()
	gen := c.Generation()
	// A type write lands between the reader's snapshot and its populate.
	c.Invalidate()
	assert.False(t, c.Populate(gen, defs()))
	assert.False(t, c.Loaded())

	assert.True(t, c.Populate(c.Generation(), defs()[:1]))
	all, _ := c.All()
	assert.Len(t, all, 1)
}

func TestReturnedDefinitionsAreCopies(t *testing.T) {
	c := New()
	require.True(t, c.Populate(c.Generation(), defs()))

	d, _ := c.Lookup("task")
	d.Properties[0].Name = "mutated"

	idx, ok := c.Index()
	require.True(t, ok)
	idx["task"].Properties[0].Name = "mutated too"

	again, _ := c.Lookup("task")
	assert.Equal(t, "Title", again.Properties[0].Name)
}
