package jobs

import (
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"

	"github.com/journeylabs/shoal/internal/store"
)

func TestPickPfpPreference(t *testing.T) {
	p := &slack.UserProfile{Image48: "s48", Image72: "s72", Image192: "s192", Image512: "s512"}
	assert.Equal(t, "s192", pickPfp(p))

	p.Image192 = ""
	assert.Equal(t, "s512", pickPfp(p))

	p.Image512 = ""
	assert.Equal(t, "s72", pickPfp(p))

	p.Image72 = ""
	assert.Equal(t, "s48", pickPfp(p))

	assert.Equal(t, store.PlaceholderPfp, pickPfp(&slack.UserProfile{}))
}

func TestProfileNameFallback(t *testing.T) {
	assert.Equal(t, "disp", profileName(&slack.UserProfile{DisplayName: "disp", RealName: "real"}))
	assert.Equal(t, "real", profileName(&slack.UserProfile{RealName: "real"}))
	assert.Equal(t, "unknown", profileName(&slack.UserProfile{}))
}
