package core

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestRecordID(t *testing.T) {
	tests := []struct {
		name       string
		entityType EntityType
		entityID   string
		chunk      *int
		want       string
	}{
		{
			name:       "unchunked",
			entityType: EntityTypeStory,
			entityID:   "s1",
			want:       "story:s1",
		},
		{
			name:       "first chunk",
			entityType: EntityTypeJob,
			entityID:   "42",
			chunk:      intPtr(0),
			want:       "job:42#0",
		},
		{
			name:       "later chunk",
			entityType: EntityTypeDocument,
			entityID:   "resume",
			chunk:      intPtr(3),
			want:       "doc:resume#3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecordID(tt.entityType, tt.entityID, tt.chunk)
			if got != tt.want {
				t.Errorf("RecordID() = %q, want %q", got, tt.want)
			}
			if again := RecordID(tt.entityType, tt.entityID, tt.chunk); again != got {
				t.Errorf("RecordID() not stable: %q vs %q", got, again)
			}
		})
	}
}

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash("Senior Go Engineer")
	h2 := ComputeHash("Senior Go Engineer")
	if h1 != h2 {
		t.Errorf("ComputeHash() produced different hashes for same content: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("ComputeHash() length = %d, want 64", len(h1))
	}
	if strings.ToLower(h1) != h1 {
		t.Errorf("ComputeHash() should be lowercase hex, got %s", h1)
	}
	if ComputeHash("Senior Go Engineer.") == h1 {
		t.Errorf("ComputeHash() produced same hash for different content")
	}
}

func TestParseEntityType(t *testing.T) {
	for _, et := range EntityTypes {
		got, err := ParseEntityType(string(et))
		if err != nil {
			t.Fatalf("ParseEntityType(%q) error = %v", et, err)
		}
		if got != et {
			t.Errorf("ParseEntityType(%q) = %q", et, got)
		}
	}

	if _, err := ParseEntityType("resume"); err == nil {
		t.Errorf("ParseEntityType() accepted unknown type")
	}
}

func TestEntityType_Chunkable(t *testing.T) {
	chunkable := map[EntityType]bool{
		EntityTypeJob:      true,
		EntityTypeDocument: true,
	}
	for _, et := range EntityTypes {
		if et.Chunkable() != chunkable[et] {
			t.Errorf("%s.Chunkable() = %v", et, et.Chunkable())
		}
	}
}

func TestCoverLetter_WithDefaults(t *testing.T) {
	job := &Job{ID: "j1", Title: "Staff Engineer", Company: "Acme"}

	letter := CoverLetter{ID: "c1", Content: "Dear team"}.WithDefaults(job)
	if letter.JobTitle != "Staff Engineer" || letter.Company != "Acme" {
		t.Errorf("WithDefaults() = %+v", letter)
	}

	custom := CoverLetter{ID: "c2", JobTitle: "Platform Lead", Content: "Hi"}.WithDefaults(job)
	if custom.JobTitle != "Platform Lead" {
		t.Errorf("WithDefaults() overwrote explicit title: %q", custom.JobTitle)
	}
	if custom.Company != "Acme" {
		t.Errorf("WithDefaults() company = %q", custom.Company)
	}
}
