package extid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownProviders(t *testing.T) {
	cases := []struct {
		provider string
		id       string
		want     string
	}{
		{ProviderYouTube, "dQw4w9WgXcQ", "yt:dQw4w9WgXcQ"},
		{ProviderSoundCloud, "123456789", "sc:123456789"},
		{Provider1001Tracklists, "2f9qkx1", "tl:2f9qkx1"},
	}
	for _, tc := range cases {
		got, err := Encode(tc.provider, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestEncode_UnsupportedProvider(t *testing.T) {
	_, err := Encode("mixcloud", "abc")
	require.Error(t, err)

	var upe *UnsupportedProviderError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, "mixcloud", upe.Provider)
}

func TestDecode_RoundTrip(t *testing.T) {
	for _, provider := range Providers() {
		encoded, err := Encode(provider, "some-id")
		require.NoError(t, err)

		ref := Decode(encoded)
		require.NotNil(t, ref)
		assert.Equal(t, provider, ref.Provider)
		assert.Equal(t, "some-id", ref.ID)
	}
}

func TestDecode_MalformedReturnsNil(t *testing.T) {
	for _, in := range []string{"", "yt", "yt:", "nope:abc", ":abc", "dQw4w9WgXcQ"} {
		assert.Nil(t, Decode(in), "input %q", in)
	}
}

func TestDecode_IDContainingColon(t *testing.T) {
	ref := Decode("yt:a:b")
	require.NotNil(t, ref)
	assert.Equal(t, "a:b", ref.ID)
}

func TestMerge_RightBiased(t *testing.T) {
	a := map[string]string{"youtube": "yt:old", "soundcloud": "sc:1"}
	b := map[string]string{"youtube": "yt:new", "1001tracklists": "tl:9"}

	got := Merge(a, b)
	assert.Equal(t, map[string]string{
		"youtube":        "yt:new",
		"soundcloud":     "sc:1",
		"1001tracklists": "tl:9",
	}, got)

	// Inputs untouched.
	assert.Equal(t, "yt:old", a["youtube"])
}

func TestMerge_Idempotent(t *testing.T) {
	a := map[string]string{"youtube": "yt:1"}
	b := map[string]string{"soundcloud": "sc:2"}

	once := Merge(a, b)
	twice := Merge(a, once)
	assert.Equal(t, once, twice)
}

func TestHasOverlap(t *testing.T) {
	a := map[string]string{"youtube": "yt:1", "soundcloud": "sc:2"}

	assert.True(t, HasOverlap(a, map[string]string{"youtube": "yt:1"}))
	// Same key, different value is not an overlap.
	assert.False(t, HasOverlap(a, map[string]string{"youtube": "yt:other"}))
	assert.False(t, HasOverlap(a, map[string]string{"1001tracklists": "tl:3"}))
	assert.False(t, HasOverlap(a, nil))
	assert.False(t, HasOverlap(nil, a))
}

func TestPriority_Ordering(t *testing.T) {
	assert.Greater(t, Priority(Provider1001Tracklists), Priority(ProviderSoundCloud))
	assert.Greater(t, Priority(ProviderSoundCloud), Priority(ProviderYouTube))
	assert.Equal(t, 0, Priority("unknown"))
}
