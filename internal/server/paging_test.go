package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRel(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/priceChanges?page=2&query=eagle", nil)

	rel := buildRel(r, 2, true)
	require.NotNil(t, rel.NextPage)
	assert.Equal(t, 3, *rel.NextPage)
	require.NotNil(t, rel.Next)
	assert.Equal(t, "/v1/priceChanges?page=3&query=eagle", *rel.Next)
	require.NotNil(t, rel.PrevPage)
	assert.Equal(t, 1, *rel.PrevPage)
	require.NotNil(t, rel.Prev)
	assert.Equal(t, "/v1/priceChanges?page=1&query=eagle", *rel.Prev)

	rel = buildRel(r, 1, false)
	assert.Nil(t, rel.NextPage)
	assert.Nil(t, rel.Next)
	assert.Nil(t, rel.PrevPage)
	assert.Nil(t, rel.Prev)
}
