package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateUUID(t *testing.T) {
	a, b := GenerateUUID(), GenerateUUID()
	if a == b {
		t.Error("expected distinct ids")
	}
	if !IsUUID(a) {
		t.Errorf("%q is not a valid UUID", a)
	}
	if IsUUID("not-a-uuid") {
		t.Error("expected invalid UUID to be rejected")
	}
}

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=abc123", "abc123", false},
		{"https://youtu.be/abc123", "abc123", false},
		{"https://www.youtube.com/embed/abc123", "abc123", false},
		{"https://www.youtube.com/shorts/abc123", "abc123", false},
		{"https://www.youtube.com/", "", true},
		{"https://example.com/video.mp4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ExtractYouTubeID(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractYouTubeID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractYouTubeID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateVideoURL(t *testing.T) {
	valid := []string{
		"https://cdn.example.com/clip.mp4",
		"http://localhost:3000/video/1",
		"https://youtu.be/xyz",
	}
	for _, u := range valid {
		if err := ValidateVideoURL(u); err != nil {
			t.Errorf("ValidateVideoURL(%q) = %v", u, err)
		}
	}

	invalid := []string{"", "clip.mp4", "ftp://example.com/a.mp4", "https://www.youtube.com/"}
	for _, u := range invalid {
		if err := ValidateVideoURL(u); err == nil {
			t.Errorf("ValidateVideoURL(%q) expected error", u)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	if err := WriteFileAtomic(path, []byte(`[1]`)); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`[2]`)); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `[2]` {
		t.Errorf("content = %q, want [2]", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
}
