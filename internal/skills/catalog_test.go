package skills

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalogFS() fstest.MapFS {
	return fstest.MapFS{
		"_base.md": {Data: []byte("You are a retention agent for a gym.\nBe warm and brief.")},
		"win_back.md": {Data: []byte(
			"id: win_back\n" +
				"applies_when: member cancelled their plan and we want them back\n" +
				"domain: winback\n" +
				"triggers: [cancelled, quit, come back]\n" +
				"\n" +
				"Acknowledge the cancellation. Offer a concrete reason to return.")},
		"payment_recovery.md": {Data: []byte(
			"id: payment_recovery\n" +
				"applies_when: billing failed or a payment is overdue\n" +
				"domain: billing\n" +
				"triggers: [payment, card declined, overdue]\n" +
				"\n" +
				"Never scold. Make updating the card effortless.")},
		"re_engagement.md": {Data: []byte(
			"id: re_engagement\n" +
				"applies_when: member has not visited the gym recently\n" +
				"domain: engagement\n" +
				"triggers: [inactive, missed, no visits]\n" +
				"\n" +
				"Invite them back around something specific they liked.")},
		"renewal_at_risk.md": {Data: []byte(
			"id: renewal_at_risk\n" +
				"applies_when: membership renewal is coming up and attendance dropped\n" +
				"domain: renewal\n" +
				"triggers: [renew, renewal, expiring]\n" +
				"\n" +
				"Surface their progress. Renewals follow momentum.")},
	}
}

func TestParseDoc(t *testing.T) {
	skill, err := ParseDoc("win_back.md", testCatalogFS()["win_back.md"].Data)
	require.NoError(t, err)

	assert.Equal(t, "win_back", skill.ID)
	assert.Equal(t, "member cancelled their plan and we want them back", skill.AppliesWhen)
	assert.Equal(t, "winback", skill.Domain)
	assert.Equal(t, []string{"cancelled", "quit", "come back"}, skill.Triggers)
	assert.Contains(t, skill.Body, "concrete reason to return")
	assert.NotContains(t, skill.Body, "applies_when")
}

func TestParseDoc_IDFromFilename(t *testing.T) {
	skill, err := ParseDoc("nudge.md", []byte("triggers: [hello]\n\nSay hello."))
	require.NoError(t, err)
	assert.Equal(t, "nudge", skill.ID)
}

func TestLoadCatalog_ExcludesBase(t *testing.T) {
	catalog, err := LoadCatalog(testCatalogFS())
	require.NoError(t, err)
	assert.Len(t, catalog, 4)
	for _, s := range catalog {
		assert.NotEqual(t, "_base", s.ID)
	}
}

func TestLoadBase(t *testing.T) {
	base := LoadBase(testCatalogFS())
	assert.Contains(t, base, "retention agent")

	assert.Empty(t, LoadBase(fstest.MapFS{}))
}

func TestIndex_LoadAndInvalidate(t *testing.T) {
	ix := NewIndex(testCatalogFS())
	require.NoError(t, ix.Load())
	assert.Len(t, ix.Skills(), 4)
	assert.NotEmpty(t, ix.Base())
	require.NotNil(t, ix.Get("win_back"))
	assert.Nil(t, ix.Get("nonexistent"))

	ix.Invalidate()
	assert.Empty(t, ix.Skills())
	assert.Empty(t, ix.Base())

	require.NoError(t, ix.Load())
	assert.Len(t, ix.Skills(), 4)
}
