package models

import "testing"

// TestWalletTraits_HasTag verifies tag membership lookups.
func TestWalletTraits_HasTag(t *testing.T) {
	traits := WalletTraits{Tags: []string{TagVeteran, TagExplorer}}
	tests := []struct {
		tag  string
		want bool
	}{
		{TagVeteran, true},
		{TagExplorer, true},
		{TagCollector, false},
		{TagNovice, false},
	}
	for _, tt := range tests {
		if got := traits.HasTag(tt.tag); got != tt.want {
			t.Errorf("HasTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}
