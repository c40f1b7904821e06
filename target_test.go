package docfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTargets(t *testing.T) {
	coll := CollectionTarget("books")
	docType := DocTypeTarget("books", "novel")

	t.Run("absent operands are ignored", func(t *testing.T) {
		got, err := mergeTargets(nil, &coll)
		require.NoError(t, err)
		assert.Equal(t, &coll, got)

		got, err = mergeTargets(&coll, nil)
		require.NoError(t, err)
		assert.Equal(t, &coll, got)

		got, err = mergeTargets(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("equal targets merge", func(t *testing.T) {
		other := CollectionTarget("books")
		got, err := mergeTargets(&coll, &other)
		require.NoError(t, err)
		assert.Equal(t, coll, *got)
	})

	t.Run("distinct targets conflict", func(t *testing.T) {
		_, err := mergeTargets(&coll, &docType)
		assert.ErrorIs(t, err, ErrTargetConflict)

		other := CollectionTarget("films")
		_, err = mergeTargets(&coll, &other)
		assert.ErrorIs(t, err, ErrTargetConflict)
	})
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "books", CollectionTarget("books").String())
	assert.Equal(t, "books/novel", DocTypeTarget("books", "novel").String())
}
