package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_PriorityOrder(t *testing.T) {
	assert.Equal(t, []ID{Managed, OpenAI, Anthropic, Gemini, OnDevice, OpenAIRealtime, Groq}, All())
}

func TestCaps(t *testing.T) {
	t.Run("openai requires credential", func(t *testing.T) {
		assert.True(t, OpenAI.Caps().RequiresCredential)
		assert.True(t, OpenAI.Caps().AllowsTier(TierFree))
	})

	t.Run("realtime is pro only", func(t *testing.T) {
		c := OpenAIRealtime.Caps()
		assert.False(t, c.AllowsTier(TierFree))
		assert.False(t, c.AllowsTier(TierPlus))
		assert.True(t, c.AllowsTier(TierPro))
		assert.True(t, c.Realtime)
	})

	t.Run("on-device is platform gated", func(t *testing.T) {
		c := OnDevice.Caps()
		assert.True(t, c.PlatformGated())
		assert.True(t, c.SupportsPlatform(SurfacePhone, 26))
		assert.False(t, c.SupportsPlatform(SurfacePhone, 25))
		assert.False(t, c.SupportsPlatform(SurfaceHeadUnit, 30))
	})

	t.Run("groq is retired", func(t *testing.T) {
		assert.False(t, Groq.Caps().Available)
	})

	t.Run("unknown id", func(t *testing.T) {
		c := ID("nope").Caps()
		assert.False(t, c.Available)
		assert.Empty(t, c.Tiers)
	})
}

func TestParse(t *testing.T) {
	id, err := Parse(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, OpenAI, id)

	_, err = Parse("watson")
	assert.Error(t, err)

	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)

	s, err := ParseSurface("head_unit")
	require.NoError(t, err)
	assert.Equal(t, SurfaceHeadUnit, s)
}
