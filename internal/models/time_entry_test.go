package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatSeconds(0))
	assert.Equal(t, "0:02:05", FormatSeconds(125))
	assert.Equal(t, "10:00:01", FormatSeconds(36001))
	assert.Equal(t, "0:00:00", FormatSeconds(-5))
}

