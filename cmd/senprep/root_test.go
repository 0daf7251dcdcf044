package main

import (
	"testing"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/match"
)

func TestPrimaryPlatform(t *testing.T) {
	tests := []struct {
		flag    string
		want    catalog.Platform
		wantErr bool
	}{
		{flag: "S1", want: catalog.Sentinel1},
		{flag: "S2", want: catalog.Sentinel2},
		{flag: "s2", want: catalog.Sentinel2},
		{flag: "landsat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			defer func(prev string) { primaryFlag = prev }(primaryFlag)
			primaryFlag = tt.flag

			got, err := primaryPlatform()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("primaryPlatform() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("primaryPlatform() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewResolverFlagPriority(t *testing.T) {
	tests := []struct {
		name          string
		skipWeek      bool
		availableArea bool
		batch         bool
		want          match.Action
	}{
		{name: "skip week", skipWeek: true, want: match.ActionSkipAll},
		{name: "available area", availableArea: true, want: match.ActionAcceptPartial},
		{name: "skip week wins over available area", skipWeek: true, availableArea: true, want: match.ActionSkipAll},
		{name: "non-interactive", batch: true, want: match.ActionSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func(sw, aa, ni bool) {
				skipWeek, availableArea, nonInteractive = sw, aa, ni
			}(skipWeek, availableArea, nonInteractive)
			skipWeek, availableArea, nonInteractive = tt.skipWeek, tt.availableArea, tt.batch

			resolver := newResolver()
			static, ok := resolver.(match.Static)
			if !ok {
				t.Fatalf("resolver = %T, want match.Static", resolver)
			}
			if static.Action != tt.want {
				t.Errorf("action = %s, want %s", static.Action, tt.want)
			}
		})
	}
}

func TestNewResolverInteractiveDefault(t *testing.T) {
	defer func(sw, aa, ni bool) {
		skipWeek, availableArea, nonInteractive = sw, aa, ni
	}(skipWeek, availableArea, nonInteractive)
	skipWeek, availableArea, nonInteractive = false, false, false

	if _, ok := newResolver().(*match.Prompt); !ok {
		t.Error("default resolver should prompt on a terminal")
	}
}
