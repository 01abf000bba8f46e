package catalog

import (
	"testing"
	"time"

	"github.com/llehouerou/attune/internal/quality"
)

func TestMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Metadata("never-set")
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if got != "" {
		t.Errorf("unset value = %q, want empty", got)
	}

	if err := s.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = s.Metadata("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v2" {
		t.Errorf("value = %q, want v2", got)
	}
}

func TestPreferencesAreSeparateFromMetadata(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetPreference("k", "pref"); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	if err := s.SetMetadata("k", "meta"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}

	pref, _ := s.Preference("k")
	meta, _ := s.Metadata("k")
	if pref != "pref" || meta != "meta" {
		t.Errorf("pref=%q meta=%q", pref, meta)
	}
}

func TestLastFullRefresh(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LastFullRefresh()
	if err != nil {
		t.Fatalf("unset: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("unset refresh = %v, want zero", got)
	}

	now := time.Now().Truncate(time.Second)
	if err := s.RecordFullRefresh(now); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err = s.LastFullRefresh()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("refresh = %v, want %v", got, now)
	}
}

func TestQualityProfileDefaultsWhenUnset(t *testing.T) {
	s := newTestStore(t)

	p, err := s.QualityProfile()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "balanced" {
		t.Errorf("Name = %q, want balanced", p.Name)
	}
	if !p.Qualities[quality.TierFLAC].Enabled {
		t.Error("default profile should enable flac")
	}
}

func TestQualityProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p, ok := quality.Preset("space_saver")
	if !ok {
		t.Fatal("preset missing")
	}
	if err := s.SetQualityProfile(p); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.QualityProfile()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "space_saver" {
		t.Errorf("Name = %q, want space_saver", got.Name)
	}
	if got.Qualities[quality.TierMP3192].Priority != p.Qualities[quality.TierMP3192].Priority {
		t.Errorf("Priority = %d, want %d",
			got.Qualities[quality.TierMP3192].Priority, p.Qualities[quality.TierMP3192].Priority)
	}
}

func TestQualityProfileMalformedFallsBack(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetPreference(qualityProfileKey, "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}
	p, err := s.QualityProfile()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "balanced" {
		t.Errorf("Name = %q, want balanced fallback", p.Name)
	}
}
