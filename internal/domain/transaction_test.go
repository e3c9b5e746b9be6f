package domain

import (
	"testing"
)

func TestNormalizeAccount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"BE26 0000 0000 0000", "BE26000000000000"},
		{"BE26000000000000", "BE26000000000000"},
		{"  BE26\t0000 ", "BE260000"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeAccount(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeAccount(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSameAccount(t *testing.T) {
	if !SameAccount("BE26 0000 0000 0000", "BE26000000000000") {
		t.Error("Expected accounts to compare equal after normalization")
	}
	if SameAccount("BE26000000000000", "BE99000000000000") {
		t.Error("Expected different accounts to compare unequal")
	}
}

func TestEntityTypeValid(t *testing.T) {
	for _, et := range EntityTypes {
		if !et.Valid() {
			t.Errorf("Expected %q to be valid", et)
		}
	}
	if EntityType("donation").Valid() {
		t.Error("Expected unknown entity type to be invalid")
	}
	if EntityType("").Valid() {
		t.Error("Expected empty entity type to be invalid")
	}
}

func TestDedupeMatched(t *testing.T) {
	in := []MatchedEntity{
		{EntityType: EntityMember, EntityID: "M1", EntityName: "Alice"},
		{EntityType: EntityExpense, EntityID: "E1"},
		{EntityType: EntityMember, EntityID: "M1", EntityName: "Alice (dupe)"},
	}

	got := DedupeMatched(in)
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries after dedupe, got %d", len(got))
	}
	if got[0].Key() != "member:M1" || got[1].Key() != "expense:E1" {
		t.Errorf("Dedupe changed order or kept wrong entries: %v", got)
	}
	// First occurrence wins, including its display name.
	if got[0].EntityName != "Alice" {
		t.Errorf("Expected first occurrence to survive, got name %q", got[0].EntityName)
	}

	// Input must be untouched.
	if len(in) != 3 {
		t.Errorf("Dedupe modified its input, len = %d", len(in))
	}

	// Idempotence: de-duplicating a clean list changes nothing.
	again := DedupeMatched(got)
	if len(again) != len(got) {
		t.Errorf("Dedupe of clean list changed length: %d != %d", len(again), len(got))
	}
	for i := range got {
		if again[i] != got[i] {
			t.Errorf("Dedupe of clean list changed entry %d: %v != %v", i, again[i], got[i])
		}
	}
}

func TestMergeMatched(t *testing.T) {
	existing := []MatchedEntity{
		{EntityType: EntityMember, EntityID: "M1"},
		{EntityType: EntityEvent, EntityID: "EV1"},
	}
	fresh := []MatchedEntity{
		{EntityType: EntityMember, EntityID: "M1"}, // already linked
		{EntityType: EntityExpense, EntityID: "E1"},
	}

	got := MergeMatched(existing, fresh)
	want := []string{"member:M1", "event:EV1", "expense:E1"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i, k := range want {
		if got[i].Key() != k {
			t.Errorf("Entry %d: got %q, want %q", i, got[i].Key(), k)
		}
	}
}
