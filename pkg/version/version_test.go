package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullIdentifiesBuild(t *testing.T) {
	full := Full()
	assert.True(t, strings.HasPrefix(full, "parley/"))
	assert.Equal(t, "parley/"+Commit(), full)
	assert.NotEmpty(t, Commit())
}

func TestShortRevTruncatesLongRevisions(t *testing.T) {
	assert.Equal(t, "a3f8c2d1", shortRev("a3f8c2d1e5b7c9d0"))
	assert.Equal(t, "dev", shortRev("dev"))
}
