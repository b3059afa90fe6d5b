package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arqcache/qcache/tagpath"
)

func ms(v int64) *int64 { return &v }

func TestNewValid(t *testing.T) {
	tags := []tagpath.Path{tagpath.New("user", "1")}
	e, err := New("v", tags, 0, 1000, ms(2000))
	require.NoError(t, err)
	assert.Equal(t, "v", e.Value)
	assert.True(t, e.HasGrace())
}

func TestNewRejectsEmptyTags(t *testing.T) {
	_, err := New("v", nil, 0, 1000, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewRejectsCreatedAfterExpires(t *testing.T) {
	tags := []tagpath.Path{tagpath.New("user", "1")}
	_, err := New("v", tags, 1000, 500, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewRejectsExpiresAfterGrace(t *testing.T) {
	tags := []tagpath.Path{tagpath.New("user", "1")}
	_, err := New("v", tags, 0, 2000, ms(1000))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNoGrace(t *testing.T) {
	tags := []tagpath.Path{tagpath.New("user", "1")}
	e, err := New("v", tags, 0, 1000, nil)
	require.NoError(t, err)
	assert.False(t, e.HasGrace())
}
