package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cands(qs ...Quality) []Candidate {
	out := make([]Candidate, len(qs))
	for i, q := range qs {
		out[i] = Candidate{Quality: q, Locator: "loc-" + string(q)}
	}
	return out
}

func TestSelectBestCandidate_Empty(t *testing.T) {
	for _, q := range []Quality{Quality2160p, Quality1080p, Quality720p, Quality480p, "weird"} {
		_, ok := SelectBestCandidate(nil, q, false)
		assert.False(t, ok, "quality %s", q)
	}
}

func TestSelectBestCandidate_FallbackOrders(t *testing.T) {
	tests := []struct {
		name string
		have []Quality
		want Quality
		got  Quality
	}{
		{"exact", []Quality{Quality720p, Quality1080p}, Quality1080p, Quality1080p},
		{"1080p falls to 720p before 2160p", []Quality{Quality2160p, Quality720p}, Quality1080p, Quality720p},
		{"1080p takes 2160p before 3D", []Quality{Quality3D, Quality2160p}, Quality1080p, Quality2160p},
		{"2160p falls to 1080p second", []Quality{Quality720p, Quality1080p}, Quality2160p, Quality1080p},
		{"720p falls to 480p before 1080p", []Quality{Quality1080p, Quality480p}, Quality720p, Quality480p},
		{"480p falls to 720p", []Quality{Quality2160p, Quality720p}, Quality480p, Quality720p},
		{"unknown request uses 1080p order", []Quality{Quality480p, Quality720p}, "1440p", Quality720p},
		{"no ordered quality returns first", []Quality{QualityUnknown, QualityUnknown}, Quality1080p, QualityUnknown},
		{"only 3D present", []Quality{Quality3D}, Quality480p, Quality3D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := SelectBestCandidate(cands(tt.have...), tt.want, false)
			require.True(t, ok)
			assert.Equal(t, tt.got, c.Quality)
		})
	}
}

func TestSelectBestCandidate_FallbackToFirst(t *testing.T) {
	in := []Candidate{
		{Quality: QualityUnknown, Locator: "first"},
		{Quality: QualityUnknown, Locator: "second"},
	}
	c, ok := SelectBestCandidate(in, Quality1080p, false)
	require.True(t, ok)
	assert.Equal(t, "first", c.Locator)
}

func TestSelectBestCandidate_Force(t *testing.T) {
	_, ok := SelectBestCandidate(cands(Quality720p, Quality2160p), Quality1080p, true)
	assert.False(t, ok)

	c, ok := SelectBestCandidate(cands(Quality720p, Quality1080p), Quality1080p, true)
	require.True(t, ok)
	assert.Equal(t, Quality1080p, c.Quality)
}

func TestSelectExactOrFirst(t *testing.T) {
	c, ok := SelectExactOrFirst(cands(Quality720p, Quality1080p), Quality1080p, false)
	require.True(t, ok)
	assert.Equal(t, Quality1080p, c.Quality)

	c, ok = SelectExactOrFirst(cands(Quality720p, Quality2160p), Quality1080p, false)
	require.True(t, ok)
	assert.Equal(t, Quality720p, c.Quality)

	_, ok = SelectExactOrFirst(cands(Quality720p), Quality1080p, true)
	assert.False(t, ok)
}

func TestPreferQualityInTop(t *testing.T) {
	in := []Candidate{
		{Title: "Movie 2019 720p", Seeders: 90},
		{Title: "Movie 2019 2160p", Seeders: 80},
		{Title: "Movie 2019 1080p", Seeders: 70},
	}
	sel := PreferQualityInTop(5)

	c, ok := sel(in, Quality1080p, false)
	require.True(t, ok)
	assert.Equal(t, 70, c.Seeders)

	c, ok = PreferQualityInTop(2)(in, Quality1080p, false)
	require.True(t, ok)
	assert.Equal(t, 90, c.Seeders, "outside the window falls back to the top seeded")

	_, ok = PreferQualityInTop(2)(in, Quality1080p, true)
	assert.False(t, ok)
}

func TestParseQuality(t *testing.T) {
	assert.Equal(t, Quality1080p, ParseQuality("Movie.2019.1080p.BluRay"))
	assert.Equal(t, Quality2160p, ParseQuality("2160P"))
	assert.Equal(t, Quality3D, ParseQuality("3D"))
	assert.Equal(t, QualityUnknown, ParseQuality("DVDRip"))
}

func TestSizeHelpers(t *testing.T) {
	assert.Equal(t, int64(1536*1024*1024), SizeToBytes("1.5 GB"))
	assert.Equal(t, int64(700*1024*1024), SizeToBytes("700mb"))
	assert.Equal(t, int64(0), SizeToBytes("unknown"))

	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 GB", FormatBytes(2*1024*1024*1024))
	assert.Equal(t, "1.00 TB", FormatBytes(1024*1024*1024*1024))
}
