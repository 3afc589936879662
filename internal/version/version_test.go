package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionDefaults(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.Empty(t, GitCommit)
	assert.Empty(t, BuildDate)
}
