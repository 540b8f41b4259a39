package strutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrListContains(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	assert.True(StrListContains([]string{"openid", "webid"}, "webid"))
	assert.False(StrListContains([]string{"openid"}, "webid"))
	assert.False(StrListContains(nil, "webid"))
	assert.False(StrListContains([]string{}, ""))
	assert.True(StrListContains([]string{""}, ""))
}
