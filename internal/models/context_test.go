package models_test

import (
	"testing"

	"crosslink-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContext(t *testing.T) {
	ctx, err := models.ParseContext("mentorship")
	require.NoError(t, err)
	assert.Equal(t, models.ContextMentorship, ctx)

	_, err = models.ParseContext("astrology")
	assert.Error(t, err)
}

func TestContextSetAddIsIdempotent(t *testing.T) {
	var s models.ContextSet
	s = s.Add(models.ContextNetworking)
	s = s.Add(models.ContextNetworking)
	s = s.Add(models.ContextNetworking)

	assert.Len(t, s, 1)
	assert.True(t, s.Contains(models.ContextNetworking))
}

func TestContextSetStableOrder(t *testing.T) {
	var s models.ContextSet
	s = s.Add(models.ContextNetworking)
	s = s.Add(models.ContextDating)
	s = s.Add(models.ContextJob)

	assert.Equal(t, models.ContextSet{
		models.ContextDating,
		models.ContextJob,
		models.ContextNetworking,
	}, s)
}

func TestContextSetValueScanRoundTrip(t *testing.T) {
	s := models.ContextSet{}.Add(models.ContextDating).Add(models.ContextJob)

	v, err := s.Value()
	require.NoError(t, err)

	var out models.ContextSet
	require.NoError(t, out.Scan(v))
	assert.Equal(t, s, out)

	// empty set survives the trip too
	v, err = models.ContextSet{}.Value()
	require.NoError(t, err)
	var empty models.ContextSet
	require.NoError(t, empty.Scan(v))
	assert.Empty(t, empty)
}

func TestMatchOtherUser(t *testing.T) {
	m := &models.Match{UserLowID: 10, UserHighID: 11}

	other, ok := m.OtherUser(10)
	require.True(t, ok)
	assert.Equal(t, uint(11), other)

	other, ok = m.OtherUser(11)
	require.True(t, ok)
	assert.Equal(t, uint(10), other)

	_, ok = m.OtherUser(12)
	assert.False(t, ok)
}
