package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText_Lowercase(t *testing.T) {
	assert.Equal(t, "lane 8", Text("Lane 8"))
	assert.Equal(t, "", Text("   "))
}

func TestText_Diacritics(t *testing.T) {
	assert.Equal(t, "tiesto", Text("Tiësto"))
	assert.Equal(t, "armin van buuren", Text("Armin van Buuren"))
}

func TestText_StripsBrackets(t *testing.T) {
	assert.Equal(t, "strobe", Text("Strobe (Club Edit)"))
	assert.Equal(t, "opus", Text("Opus [Four Tet Remix]"))
	assert.Equal(t, "anjunadeep edition", Text("Anjunadeep Edition {Live}"))
}

func TestText_FeaturingTokens(t *testing.T) {
	assert.Equal(t, "sun and moon featuring richard bedford", Text("Sun & Moon feat. Richard Bedford"))
	assert.Equal(t, "sun and moon featuring richard bedford", Text("Sun & Moon ft Richard Bedford"))
	// Already-canonical text is untouched.
	assert.Equal(t, "sun and moon featuring richard bedford", Text("sun and moon featuring richard bedford"))
}

func TestText_Versus(t *testing.T) {
	assert.Equal(t, "above and beyond versus gabriel and dresden", Text("Above & Beyond vs. Gabriel & Dresden"))
}

func TestText_PunctuationAndWhitespace(t *testing.T) {
	assert.Equal(t, "deadmau5 live", Text("deadmau5:   live!"))
	assert.Equal(t, "carl cox essential mix", Text("Carl Cox — Essential Mix")) // em dash stripped
}

func TestText_FeaturingInsideWordUntouched(t *testing.T) {
	assert.Equal(t, "featherweight", Text("Featherweight"))
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"Lane 8 - Brightest Lights (feat. POLIÇA) [Sunset Mix]",
		"Tiësto vs. Hardwell & Friends",
		"  Boris   Brejcha @ Tomorrowland 2018  ",
	}
	for _, in := range inputs {
		once := Text(in)
		assert.Equal(t, once, Text(once), "input %q", in)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"lane", "8"}, Tokens("Lane 8"))
	assert.Nil(t, Tokens("   "))
}

func TestSplitArtistTitle(t *testing.T) {
	a, ti := SplitArtistTitle("Lane 8 - This Never Happened")
	assert.Equal(t, "Lane 8", a)
	assert.Equal(t, "This Never Happened", ti)

	a, ti = SplitArtistTitle("Just A Title")
	assert.Equal(t, "", a)
	assert.Equal(t, "Just A Title", ti)

	a, ti = SplitArtistTitle("Ben Böhmer – Breathing Live")
	assert.Equal(t, "Ben Böhmer", a)
	assert.Equal(t, "Breathing Live", ti)
}
