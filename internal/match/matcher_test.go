package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type candidate struct {
	Title string
	Alt   string
}

func candTitle(c candidate) string { return c.Title }
func candAlt(c candidate) string   { return c.Alt }

func TestSlug(t *testing.T) {
	assert.Equal(t, "drstone3", Slug("Dr. STONE 3"))
	assert.Equal(t, "rezero", Slug("Re:Zero"))
	assert.Equal(t, "pokmon", Slug("Pokémon"))
	assert.Equal(t, "", Slug(""))
}

func TestBestMatchExactWinsOverShorterFuzzy(t *testing.T) {
	cands := []candidate{
		{Title: "Show"},
		{Title: "Show: Extended Edition"},
		{Title: "Show Extended Edition"},
	}
	got, kind, ok := BestMatch("showextendededition", cands, candTitle, candAlt)
	assert.True(t, ok)
	assert.Equal(t, MatchExact, kind)
	assert.Equal(t, "Show: Extended Edition", got.Title)
}

func TestBestMatchExactOnAlternateTitle(t *testing.T) {
	cands := []candidate{
		{Title: "Attack on Titan Final", Alt: ""},
		{Title: "Attack on Titan", Alt: "Shingeki no Kyojin"},
	}
	got, kind, ok := BestMatch("shingekinokyojin", cands, candTitle, candAlt)
	assert.True(t, ok)
	assert.Equal(t, MatchExact, kind)
	assert.Equal(t, "Attack on Titan", got.Title)
}

func TestBestMatchFuzzyPrefersShortest(t *testing.T) {
	cands := []candidate{
		{Title: "Show: Extended Edition"},
		{Title: "The Show!"},
		{Title: "Show 2nd"},
	}
	got, kind, ok := BestMatch("show", cands, candTitle, candAlt)
	assert.True(t, ok)
	assert.Equal(t, MatchFuzzy, kind)
	assert.Equal(t, "Show 2nd", got.Title)
}

func TestBestMatchFuzzyTieKeepsInputOrder(t *testing.T) {
	cands := []candidate{
		{Title: "Show AA"},
		{Title: "Show BB"},
	}
	got, _, ok := BestMatch("show", cands, candTitle, nil)
	assert.True(t, ok)
	assert.Equal(t, "Show AA", got.Title)
}

func TestBestMatchNone(t *testing.T) {
	cands := []candidate{{Title: "Bleach"}, {Title: "Naruto"}}
	_, _, ok := BestMatch("onepiece", cands, candTitle, candAlt)
	assert.False(t, ok)

	_, _, ok = BestMatch("", cands, candTitle, candAlt)
	assert.False(t, ok)

	_, _, ok = BestMatch("bleach", []candidate(nil), candTitle, candAlt)
	assert.False(t, ok)
}

func TestSlugOverlap(t *testing.T) {
	assert.True(t, SlugOverlap("narutoshippuden", "naruto"))
	assert.True(t, SlugOverlap("naruto", "narutoshippuden"))
	assert.False(t, SlugOverlap("bleach", "naruto"))
	assert.False(t, SlugOverlap("", "naruto"))
}
