package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("https://www.clien.net/service/board/jirum/18912345", "/", 6)
	require.NoError(t, err)
	assert.Equal(t, "18912345", part)

	_, err = GetSplitPart("a/b", "/", 5)
	assert.Error(t, err)

	_, err = GetSplitPart("a/b", "/", -1)
	assert.Error(t, err)
}

func TestQueryParam(t *testing.T) {
	id, err := QueryParam("https://www.ppomppu.co.kr/zboard/view.php?id=ppomppu&no=612345", "no")
	require.NoError(t, err)
	assert.Equal(t, "612345", id)

	_, err = QueryParam("https://www.ppomppu.co.kr/zboard/view.php?id=ppomppu", "no")
	assert.Error(t, err)
}
