package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/anxuanzi/vera-go/snapshot"
)

func TestDefaultAnnotationStyle(t *testing.T) {
	style := DefaultAnnotationStyle()

	if style.BoxWidth != 2 {
		t.Errorf("BoxWidth = %f, want 2", style.BoxWidth)
	}
	if style.FontSize != 12 {
		t.Errorf("FontSize = %f, want 12", style.FontSize)
	}
	if !style.ShowIndex {
		t.Error("ShowIndex should be true by default")
	}
	if style.ShowRole {
		t.Error("ShowRole should be false by default")
	}
	if style.BoxColor == nil || style.LabelColor == nil || style.TextColor == nil {
		t.Error("colors should not be nil")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("empty config", func(t *testing.T) {
		m := NewManager(&Config{})
		if m.config.ImageFormat != "png" {
			t.Errorf("default ImageFormat = %q, want png", m.config.ImageFormat)
		}
		if m.config.Quality != 90 {
			t.Errorf("default Quality = %d, want 90", m.config.Quality)
		}
		if m.config.AnnotationStyle == nil {
			t.Error("AnnotationStyle should default")
		}
	})

	t.Run("custom config", func(t *testing.T) {
		m := NewManager(&Config{ImageFormat: "jpeg", Quality: 80, MaxScreenshots: 10})
		if m.config.ImageFormat != "jpeg" {
			t.Errorf("ImageFormat = %q, want jpeg", m.config.ImageFormat)
		}
		if m.config.Quality != 80 {
			t.Errorf("Quality = %d, want 80", m.config.Quality)
		}
	})

	t.Run("storage dir created", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "screenshots")
		NewManager(&Config{StorageDir: dir})
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("StorageDir should be created")
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ input, want string }{
		{"simple", "simple"},
		{"with spaces", "with_spaces"},
		{"with/slashes", "withslashes"},
		{"Special!@#$%", "Special"},
		{"numbers123", "numbers123"},
		{"dashes-and_underscores", "dashes-and_underscores"},
		{"", "screenshot"},
		{"   ", "___"},
		{"a b c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeFilenameTruncation(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	if got := sanitizeFilename(long); len(got) > 50 {
		t.Errorf("length = %d, want <= 50", len(got))
	}
}

func TestIsScreenshotFile(t *testing.T) {
	tests := map[string]bool{
		"image.png": true, "image.jpg": true, "image.jpeg": true,
		"image.PNG": false, "image.gif": false, "document.txt": false,
		"file": false, ".png": true,
	}
	for name, want := range tests {
		if got := isScreenshotFile(name); got != want {
			t.Errorf("isScreenshotFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func createTestPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestAnnotate(t *testing.T) {
	m := NewManager(&Config{})

	t.Run("no elements returns original", func(t *testing.T) {
		data := createTestPNG(100, 100)
		result, err := m.Annotate(data, nil)
		if err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if !bytes.Equal(result, data) {
			t.Error("Annotate with no elements should return original data")
		}
	})

	t.Run("with elements", func(t *testing.T) {
		data := createTestPNG(200, 200)
		els := []snapshot.Element{{
			ID: 0, Role: "button", InViewport: true,
			BBox: snapshot.BoundingBox{X: 50, Y: 50, Width: 100, Height: 30},
		}}
		result, err := m.Annotate(data, els)
		if err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if bytes.Equal(result, data) {
			t.Error("annotated screenshot should differ from original")
		}
		if _, err := png.Decode(bytes.NewReader(result)); err != nil {
			t.Errorf("result is not valid PNG: %v", err)
		}
	})

	t.Run("skips occluded elements", func(t *testing.T) {
		data := createTestPNG(200, 200)
		els := []snapshot.Element{{
			ID: 0, InViewport: true, IsOccluded: true,
			BBox: snapshot.BoundingBox{X: 50, Y: 50, Width: 100, Height: 30},
		}}
		result, err := m.Annotate(data, els)
		if err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if !bytes.Equal(result, data) {
			t.Error("occluded elements should not be drawn")
		}
	})

	t.Run("skips zero-size elements", func(t *testing.T) {
		data := createTestPNG(200, 200)
		els := []snapshot.Element{{
			ID: 0, InViewport: true,
			BBox: snapshot.BoundingBox{X: 50, Y: 50, Width: 0, Height: 30},
		}}
		result, err := m.Annotate(data, els)
		if err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}
		if !bytes.Equal(result, data) {
			t.Error("zero-size elements should not be drawn")
		}
	})
}

func TestSave(t *testing.T) {
	t.Run("no storage dir", func(t *testing.T) {
		m := NewManager(&Config{})
		if _, err := m.Save([]byte("data"), "test"); err == nil {
			t.Error("Save should fail without storage dir")
		}
	})

	t.Run("save screenshot", func(t *testing.T) {
		dir := t.TempDir()
		m := NewManager(&Config{StorageDir: dir})
		data := createTestPNG(100, 100)

		path, err := m.Save(data, "test_screenshot")
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read saved file: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Error("saved data should match original")
		}
	})
}

func TestList(t *testing.T) {
	t.Run("no storage dir", func(t *testing.T) {
		m := NewManager(&Config{})
		paths, err := m.List()
		if err != nil || paths != nil {
			t.Errorf("List() = %v, %v, want nil, nil", paths, err)
		}
	})

	t.Run("lists saved screenshots", func(t *testing.T) {
		dir := t.TempDir()
		m := NewManager(&Config{StorageDir: dir})
		data := createTestPNG(10, 10)
		for i := 0; i < 3; i++ {
			if _, err := m.Save(data, fmt.Sprintf("test_%d", i)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		}
		paths, err := m.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(paths) != 3 {
			t.Errorf("List() returned %d paths, want 3", len(paths))
		}
	})

	t.Run("ignores non-screenshot files", func(t *testing.T) {
		dir := t.TempDir()
		m := NewManager(&Config{StorageDir: dir})
		_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644)
		paths, err := m.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(paths) != 0 {
			t.Errorf("List() returned %d paths, want 0", len(paths))
		}
	})
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(&Config{StorageDir: dir})
	data := createTestPNG(10, 10)
	for i := 0; i < 3; i++ {
		_, _ = m.Save(data, "test")
	}
	txtFile := filepath.Join(dir, "readme.txt")
	_ = os.WriteFile(txtFile, []byte("x"), 0o644)

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	paths, _ := m.List()
	if len(paths) != 0 {
		t.Errorf("after Clear, List() returned %d, want 0", len(paths))
	}
	if _, err := os.Stat(txtFile); os.IsNotExist(err) {
		t.Error("Clear should not remove non-screenshot files")
	}
}

func TestCleanupEnforcesMax(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(&Config{StorageDir: dir, MaxScreenshots: 3})
	data := createTestPNG(10, 10)

	for i := 0; i < 5; i++ {
		if _, err := m.Save(data, "test"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	paths, _ := m.List()
	if len(paths) > 3 {
		t.Errorf("should have at most 3 screenshots, got %d", len(paths))
	}
}

func TestCompressForLLMResizesLargeImages(t *testing.T) {
	data := createTestPNG(1600, 1000)
	out, err := CompressForLLM(data, 800, 60)
	if err != nil {
		t.Fatalf("CompressForLLM() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode compressed image: %v", err)
	}
	if img.Bounds().Dx() != 800 {
		t.Errorf("width = %d, want 800", img.Bounds().Dx())
	}
}
