package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt_EncodesTimestamp(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	parsed, err := ulid.Parse(NewAt(at))
	require.NoError(t, err)
	assert.Equal(t, uint64(at.UnixMilli()), parsed.Time())
}

func TestNew_Unique(t *testing.T) {
	assert.NotEqual(t, New(), New())
}
