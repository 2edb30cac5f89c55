package tmdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

func provider(id int64, name string) domain.WatchProvider {
	return domain.WatchProvider{ProviderID: id, ProviderName: name}
}

func prioritized(id int64, name string, priority int) domain.WatchProvider {
	p := provider(id, name)
	p.DisplayPriority = &priority
	return p
}

func providerIDs(list []domain.WatchProvider) []int64 {
	ids := make([]int64, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ProviderID)
	}
	return ids
}

func TestExtractWatchProvidersEmptyInputs(t *testing.T) {
	got := ExtractWatchProviders(nil, "IN")
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = ExtractWatchProviders(&domain.WatchProvidersPayload{ID: 1}, "IN")
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = ExtractWatchProviders(&domain.WatchProvidersPayload{Results: map[string]domain.RegionAvailability{
		"FR": {Flatrate: []domain.WatchProvider{provider(1, "A")}},
	}}, "IN")
	assert.Empty(t, got)
}

func TestExtractWatchProvidersRegionFallback(t *testing.T) {
	cases := []struct {
		name    string
		results map[string]domain.RegionAvailability
		want    []int64
	}{
		{
			name: "home region wins",
			results: map[string]domain.RegionAvailability{
				"IN": {Flatrate: []domain.WatchProvider{provider(1, "Home")}},
				"US": {Flatrate: []domain.WatchProvider{provider(2, "US")}},
			},
			want: []int64{1},
		},
		{
			name: "US before GB",
			results: map[string]domain.RegionAvailability{
				"GB": {Flatrate: []domain.WatchProvider{provider(3, "GB")}},
				"US": {Flatrate: []domain.WatchProvider{provider(2, "US")}},
			},
			want: []int64{2},
		},
		{
			name: "GB last",
			results: map[string]domain.RegionAvailability{
				"GB": {Rent: []domain.WatchProvider{provider(3, "GB")}},
			},
			want: []int64{3},
		},
		{
			name: "present but empty home region is not skipped",
			results: map[string]domain.RegionAvailability{
				"IN": {},
				"US": {Flatrate: []domain.WatchProvider{provider(2, "US")}},
			},
			want: []int64{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractWatchProviders(&domain.WatchProvidersPayload{Results: tc.results}, "IN")
			assert.Equal(t, tc.want, providerIDs(got))
		})
	}
}

func TestExtractWatchProvidersOrderDedupeAndCap(t *testing.T) {
	payload := &domain.WatchProvidersPayload{Results: map[string]domain.RegionAvailability{
		"IN": {
			Flatrate: []domain.WatchProvider{provider(8, "Netflix"), provider(119, "Prime")},
			Ads:      []domain.WatchProvider{provider(8, "Netflix"), provider(300, "Pluto")},
			Rent:     []domain.WatchProvider{provider(2, "Apple"), provider(3, "Play")},
			Buy:      []domain.WatchProvider{provider(2, "Apple"), provider(10, "Amazon")},
		},
	}}

	got := ExtractWatchProviders(payload, "IN")
	assert.Equal(t, []int64{8, 119, 300, 2}, providerIDs(got))
}

func TestExtractWatchProvidersDecodedPayload(t *testing.T) {
	raw := `{"id":550,"results":{"US":{"link":"x","buy":[{"provider_id":2,"provider_name":"Apple TV","logo_path":"/a.jpg","display_priority":4}],"flatrate":[{"provider_id":8,"provider_name":"Netflix","logo_path":null}]}}}`
	var payload domain.WatchProvidersPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	got := ExtractWatchProviders(&payload, "IN")
	require.Len(t, got, 2)
	assert.Equal(t, "Netflix", got[0].ProviderName)
	assert.Nil(t, got[0].LogoPath)
	assert.Equal(t, "Apple TV", got[1].ProviderName)
	require.NotNil(t, got[1].LogoPath)
	assert.Equal(t, "/a.jpg", *got[1].LogoPath)
}

func TestMergeProviders(t *testing.T) {
	movies := []domain.WatchProvider{
		prioritized(8, "Netflix", 3),
		provider(77, "NoPriority"),
		prioritized(119, "Prime", 1),
	}
	tv := []domain.WatchProvider{
		prioritized(8, "Netflix TV", 0),
		prioritized(350, "Apple", 3),
		prioritized(337, "Disney", 1200),
	}

	got := MergeProviders(movies, tv)
	assert.Equal(t, []int64{119, 8, 350, 77, 337}, providerIDs(got))
	assert.Equal(t, "Netflix", got[1].ProviderName, "first occurrence wins")
}

func TestMergeProvidersEmpty(t *testing.T) {
	got := MergeProviders(nil, nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func FuzzExtractWatchProviders(f *testing.F) {
	f.Add("IN", int64(1), int64(2), int64(1), int64(3), int64(4), int64(5))
	f.Add("US", int64(0), int64(0), int64(0), int64(0), int64(0), int64(0))

	f.Fuzz(func(t *testing.T, region string, a, b, c, d, e, g int64) {
		ids := []int64{a, b, c, d, e, g}
		availability := domain.RegionAvailability{}
		for i, id := range ids {
			p := provider(id, "p")
			switch i % 4 {
			case 0:
				availability.Flatrate = append(availability.Flatrate, p)
			case 1:
				availability.Ads = append(availability.Ads, p)
			case 2:
				availability.Rent = append(availability.Rent, p)
			default:
				availability.Buy = append(availability.Buy, p)
			}
		}
		payload := &domain.WatchProvidersPayload{Results: map[string]domain.RegionAvailability{region: availability}}

		got := ExtractWatchProviders(payload, region)
		if got == nil {
			t.Fatalf("providers should never be nil")
		}
		if len(got) > MaxAttachedProviders {
			t.Fatalf("got %d providers, want at most %d", len(got), MaxAttachedProviders)
		}
		seen := make(map[int64]bool)
		for _, p := range got {
			if seen[p.ProviderID] {
				t.Fatalf("duplicate provider %d", p.ProviderID)
			}
			seen[p.ProviderID] = true
		}
	})
}

func BenchmarkExtractWatchProviders(b *testing.B) {
	availability := domain.RegionAvailability{}
	for i := int64(0); i < 20; i++ {
		availability.Flatrate = append(availability.Flatrate, provider(i%7, "p"))
		availability.Buy = append(availability.Buy, provider(i, "p"))
	}
	payload := &domain.WatchProvidersPayload{Results: map[string]domain.RegionAvailability{"US": availability}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ExtractWatchProviders(payload, "IN")
	}
}
