package tmdb

import (
	"cmp"
	"slices"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

const (
	// MaxAttachedProviders caps the providers attached to a single title.
	MaxAttachedProviders = 4

	missingDisplayPriority = 999
)

// fallbackRegions are consulted, in order, after the home region.
var fallbackRegions = []string{"US", "GB"}

// ExtractWatchProviders picks the availability of homeRegion (then US, then GB),
// concatenates flatrate, ads, rent and buy offers, keeps the first occurrence of
// each provider and returns at most MaxAttachedProviders entries.
func ExtractWatchProviders(payload *domain.WatchProvidersPayload, homeRegion string) []domain.WatchProvider {
	providers := make([]domain.WatchProvider, 0, MaxAttachedProviders)
	if payload == nil || payload.Results == nil {
		return providers
	}

	var regional domain.RegionAvailability
	for _, region := range append([]string{homeRegion}, fallbackRegions...) {
		if availability, ok := payload.Results[region]; ok {
			regional = availability
			break
		}
	}

	seen := make(map[int64]struct{})
	for _, category := range [][]domain.WatchProvider{regional.Flatrate, regional.Ads, regional.Rent, regional.Buy} {
		for _, provider := range category {
			if _, dup := seen[provider.ProviderID]; dup {
				continue
			}
			seen[provider.ProviderID] = struct{}{}
			providers = append(providers, provider)
			if len(providers) == MaxAttachedProviders {
				return providers
			}
		}
	}
	return providers
}

// MergeProviders concatenates the lists, keeps the first occurrence of each
// provider id and sorts by ascending display priority. Providers without a
// priority sort after all others; ties keep their merged order.
func MergeProviders(lists ...[]domain.WatchProvider) []domain.WatchProvider {
	merged := make([]domain.WatchProvider, 0)
	seen := make(map[int64]struct{})
	for _, list := range lists {
		for _, provider := range list {
			if _, dup := seen[provider.ProviderID]; dup {
				continue
			}
			seen[provider.ProviderID] = struct{}{}
			merged = append(merged, provider)
		}
	}

	slices.SortStableFunc(merged, func(a, b domain.WatchProvider) int {
		return cmp.Compare(displayPriority(a), displayPriority(b))
	})
	return merged
}

func displayPriority(p domain.WatchProvider) int {
	if p.DisplayPriority == nil {
		return missingDisplayPriority
	}
	return *p.DisplayPriority
}
