package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckForbidden(t *testing.T) {
	checked := ColumnRef{Table: "payments", Column: "country"}
	blacklist := ColumnRef{Table: "sanctions", Column: "blacklist"}

	t.Run("blacklisted value found", func(t *testing.T) {
		got := CheckForbidden(checked, []string{"X", "Z"}, blacklist, NewValueSet("X", "Y"), 10)

		require.NotNil(t, got)
		assert.Equal(t, "payments", got.TargetTable)
		assert.Equal(t, "country", got.Column)
		assert.Equal(t, "sanctions", got.ForbiddenTable)
		assert.Equal(t, "blacklist", got.ForbiddenColumn)
		assert.Equal(t, []string{"X"}, got.FoundValues)
		assert.Equal(t, 1, got.Count)
	})

	t.Run("repeated values count once", func(t *testing.T) {
		got := CheckForbidden(checked, []string{"X", "X", "Y"}, blacklist, NewValueSet("X", "Y"), 1)

		require.NotNil(t, got)
		assert.Equal(t, []string{"X"}, got.FoundValues)
		assert.Equal(t, 2, got.Count)
	})

	t.Run("clean column", func(t *testing.T) {
		assert.Nil(t, CheckForbidden(checked, []string{"Z", ""}, blacklist, NewValueSet("X"), 10))
	})
}
