package model

import (
	"github.com/paulmach/orb"
)

// DefaultUseLimitation is the licensing tier applied to station observations
// when the config does not say otherwise. The default tier is left out of
// cache keys so existing entries stay addressable.
const DefaultUseLimitation = 20

// MaxUseLimitation is the highest licensing tier a request may ask for.
const MaxUseLimitation = 40

// Bounds is a geographic bounding box (min lon, min lat, max lon, max lat)
// in the coordinate system of the request, usually epsg:4326.
type Bounds struct {
	orb.Bound
}

// NewBounds builds a bounding box from west/south/east/north edges.
func NewBounds(minLon, minLat, maxLon, maxLat float64) Bounds {
	return Bounds{Bound: orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}}
}

// Edges returns the box as (minLon, minLat, maxLon, maxLat).
func (b Bounds) Edges() (float64, float64, float64, float64) {
	return b.Min[0], b.Min[1], b.Max[0], b.Max[1]
}

// ExtraParams narrows a fetch beyond source, variable and days. Selection
// parameters (members, steps, levels, limitation tier, bounds) are part of
// the unit's cache identity; output options (target CRS) and access details
// (credentials path) are not.
type ExtraParams struct {
	EnsembleMembers []int
	StepHours       []int
	Levels          []int
	UseLimitation   int // 0 means DefaultUseLimitation
	Bounds          *Bounds
	TargetCRS       string
	CredentialsPath string
}

// EffectiveUseLimitation resolves the zero value to the default tier.
func (p ExtraParams) EffectiveUseLimitation() int {
	if p.UseLimitation == 0 {
		return DefaultUseLimitation
	}
	return p.UseLimitation
}
