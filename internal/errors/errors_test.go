package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("bad date")
	ee := New(fmt.Errorf("site1_call.wav: %w", sentinel)).
		Component("population").
		Category(CategoryDateFormat).
		Context("files", 1).
		Build()

	wrapped := fmt.Errorf("estimation skipped: %w", ee)

	assert.True(t, IsCategory(wrapped, CategoryDateFormat))
	assert.False(t, IsCategory(wrapped, CategoryValidation))
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryDateFormat}))
	assert.Equal(t, map[string]any{"files": 1}, ee.GetContext())
}

func TestDetail(t *testing.T) {
	t.Parallel()

	ee := FileError(NewStd("permission denied"), "/out/presence_index.csv")
	assert.Equal(t,
		"[unknown/file-io] permission denied file=/out/presence_index.csv",
		ee.Detail())
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := ValidationError("fmin must be positive")
	assert.True(t, IsCategory(err, CategoryValidation))
	assert.False(t, IsNotFound(err))
}
