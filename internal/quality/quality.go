// Package quality models download quality profiles: named tiers with size
// bounds and priorities, and the waterfall filter that picks candidates
// from search results tier by tier.
package quality

import (
	"encoding/json"

	"github.com/llehouerou/attune/internal/slskd"
)

// Tier buckets a candidate by format and bitrate.
type Tier string

const (
	TierFLAC   Tier = "flac"
	TierMP3320 Tier = "mp3_320"
	TierMP3256 Tier = "mp3_256"
	TierMP3192 Tier = "mp3_192"
	TierOther  Tier = "other"
)

// Tiers lists every tier, best first.
var Tiers = []Tier{TierFLAC, TierMP3320, TierMP3256, TierMP3192, TierOther}

// TierSetting configures one tier of a profile. Size bounds are megabytes
// of raw file size (size/1048576).
type TierSetting struct {
	Enabled  bool `json:"enabled"`
	MinMB    int  `json:"min_mb"`
	MaxMB    int  `json:"max_mb"`
	Priority int  `json:"priority"`
}

// Profile is a full quality preference: per-tier settings plus a fallback
// switch. It round-trips through the catalog's quality_profile preference
// as JSON.
type Profile struct {
	Name            string               `json:"name,omitempty"`
	Qualities       map[Tier]TierSetting `json:"qualities"`
	FallbackEnabled bool                 `json:"fallback_enabled"`
}

// PresetNames lists the built-in profiles.
var PresetNames = []string{"audiophile", "balanced", "space_saver"}

// Preset returns a built-in profile by name.
func Preset(name string) (Profile, bool) {
	switch name {
	case "audiophile":
		return Profile{
			Name: "audiophile",
			Qualities: map[Tier]TierSetting{
				TierFLAC:   {Enabled: true, MinMB: 10, MaxMB: 200, Priority: 1},
				TierMP3320: {Enabled: true, MinMB: 5, MaxMB: 20, Priority: 2},
				TierMP3256: {Enabled: false, MinMB: 4, MaxMB: 15, Priority: 3},
				TierMP3192: {Enabled: false, MinMB: 2, MaxMB: 12, Priority: 4},
				TierOther:  {Enabled: false, MinMB: 1, MaxMB: 20, Priority: 5},
			},
			FallbackEnabled: false,
		}, true
	case "balanced":
		return Profile{
			Name: "balanced",
			Qualities: map[Tier]TierSetting{
				TierFLAC:   {Enabled: true, MinMB: 10, MaxMB: 100, Priority: 1},
				TierMP3320: {Enabled: true, MinMB: 5, MaxMB: 20, Priority: 2},
				TierMP3256: {Enabled: true, MinMB: 4, MaxMB: 15, Priority: 3},
				TierMP3192: {Enabled: false, MinMB: 2, MaxMB: 12, Priority: 4},
				TierOther:  {Enabled: false, MinMB: 1, MaxMB: 20, Priority: 5},
			},
			FallbackEnabled: true,
		}, true
	case "space_saver":
		return Profile{
			Name: "space_saver",
			Qualities: map[Tier]TierSetting{
				TierFLAC:   {Enabled: false, MinMB: 10, MaxMB: 100, Priority: 4},
				TierMP3320: {Enabled: false, MinMB: 5, MaxMB: 15, Priority: 3},
				TierMP3256: {Enabled: true, MinMB: 3, MaxMB: 10, Priority: 2},
				TierMP3192: {Enabled: true, MinMB: 2, MaxMB: 8, Priority: 1},
				TierOther:  {Enabled: false, MinMB: 1, MaxMB: 20, Priority: 5},
			},
			FallbackEnabled: true,
		}, true
	}
	return Profile{}, false
}

// Default is the profile used when no preference is stored.
func Default() Profile {
	p, _ := Preset("balanced")
	return p
}

// Parse decodes a stored profile. Empty or malformed input yields the
// default so a corrupted preference never blocks downloads.
func Parse(raw string) Profile {
	if raw == "" {
		return Default()
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil || len(p.Qualities) == 0 {
		return Default()
	}
	return p
}

// Encode serializes a profile for preference storage.
func Encode(p Profile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TierOf assigns a candidate to its tier. FLAC goes by format alone; MP3
// splits on bitrate; everything else, including low-bitrate MP3, lands in
// the other tier.
func TierOf(t slskd.TrackResult) Tier {
	switch t.Quality {
	case slskd.QualityFLAC:
		return TierFLAC
	case slskd.QualityMP3:
		switch {
		case t.Bitrate >= 320:
			return TierMP3320
		case t.Bitrate >= 256:
			return TierMP3256
		case t.Bitrate >= 192:
			return TierMP3192
		}
	}
	return TierOther
}

// sizeOK reports whether a file passes the tier's size gate.
func sizeOK(size int64, s TierSetting) bool {
	mb := float64(size) / 1048576
	return mb >= float64(s.MinMB) && mb <= float64(s.MaxMB)
}
