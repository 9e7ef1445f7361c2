// Package region picks the commerce region a new cart is created in.
package region

import (
	"strings"
)

// CountryCookie is the cookie the storefront sets when the shopper picks a country.
const CountryCookie = "country_code"

// Resolver maps a country code to a region ID.
type Resolver struct {
	defaultRegion string
	byCountry     map[string]string
}

// NewResolver creates a Resolver. Country codes are matched case-insensitively.
func NewResolver(defaultRegion string, byCountry map[string]string) *Resolver {
	m := make(map[string]string, len(byCountry))
	for country, regionID := range byCountry {
		m[strings.ToLower(strings.TrimSpace(country))] = regionID
	}
	return &Resolver{defaultRegion: defaultRegion, byCountry: m}
}

// Resolve returns the region for the first known country among candidates,
// falling back to the default region.
func (r *Resolver) Resolve(candidates ...string) string {
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if regionID, ok := r.byCountry[c]; ok {
			return regionID
		}
	}
	return r.defaultRegion
}

// Default returns the fallback region ID.
func (r *Resolver) Default() string {
	return r.defaultRegion
}
