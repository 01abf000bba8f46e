package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/llehouerou/attune/internal/quality"
)

// QualityShow prints the active download quality profile.
func (r *Runner) QualityShow(ctx context.Context, cmd *cli.Command) error {
	profile, err := r.catalog.QualityProfile()
	if err != nil {
		return err
	}

	name := profile.Name
	if name == "" {
		name = "custom"
	}
	r.writePlain("Profile: %s (fallback %s)\n", name, onOff(profile.FallbackEnabled))
	for _, tier := range quality.Tiers {
		s, ok := profile.Qualities[tier]
		if !ok {
			continue
		}
		r.writePlain("  %-8s %-3s priority %d, %d-%d MB\n",
			tier, onOff(s.Enabled), s.Priority, s.MinMB, s.MaxMB)
	}
	return nil
}

// QualityUse activates a built-in preset.
func (r *Runner) QualityUse(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("preset")
	profile, ok := quality.Preset(name)
	if !ok {
		return fmt.Errorf("unknown preset %q (want one of %s)",
			name, strings.Join(quality.PresetNames, ", "))
	}
	if err := r.catalog.SetQualityProfile(profile); err != nil {
		return err
	}
	r.writePlain("Using %s profile.\n", profile.Name)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
