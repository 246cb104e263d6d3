// Package screenshot captures, annotates, compresses, and persists viewport
// screenshots. It is grounded on the teacher's screenshot manager (as
// reconstructed from its surviving test file): a Manager holding an
// AnnotationStyle and a Config, drawing numbered boxes over interactive
// elements and rotating saved files past MaxScreenshots.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	imgdraw "golang.org/x/image/draw"

	"github.com/anxuanzi/vera-go/snapshot"
)

// AnnotationStyle controls how element boxes are drawn over a screenshot.
type AnnotationStyle struct {
	BoxWidth   float64
	FontSize   float64
	ShowIndex  bool
	ShowRole   bool
	BoxColor   color.Color
	LabelColor color.Color
	TextColor  color.Color
}

// DefaultAnnotationStyle matches the teacher's defaults: a 2px box, 12pt
// label, element index shown, role not shown.
func DefaultAnnotationStyle() *AnnotationStyle {
	return &AnnotationStyle{
		BoxWidth:   2,
		FontSize:   12,
		ShowIndex:  true,
		ShowRole:   false,
		BoxColor:   color.RGBA{R: 255, G: 0, B: 0, A: 255},
		LabelColor: color.RGBA{R: 255, G: 0, B: 0, A: 255},
		TextColor:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Config configures a Manager.
type Config struct {
	Enabled         bool
	Annotate        bool
	StorageDir      string
	MaxScreenshots  int
	ImageFormat     string
	Quality         int
	AnnotationStyle *AnnotationStyle
}

// Manager captures, annotates, compresses, and persists screenshots.
type Manager struct {
	config Config
}

// NewManager fills in defaults the way the teacher's config layer does:
// ImageFormat defaults to png, Quality to 90, AnnotationStyle to
// DefaultAnnotationStyle, and StorageDir (if set) is created eagerly.
func NewManager(cfg *Config) *Manager {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ImageFormat == "" {
		c.ImageFormat = "png"
	}
	if c.Quality == 0 {
		c.Quality = 90
	}
	if c.AnnotationStyle == nil {
		c.AnnotationStyle = DefaultAnnotationStyle()
	}
	if c.StorageDir != "" {
		_ = os.MkdirAll(c.StorageDir, 0o755)
	}
	return &Manager{config: c}
}

// Annotate draws numbered boxes over every visible, non-zero-size element.
// With no elements (nil or empty), the original bytes are returned
// unchanged — this lets callers Annotate unconditionally without branching
// on whether a snapshot was available.
func (m *Manager) Annotate(pngData []byte, elements []snapshot.Element) ([]byte, error) {
	if len(elements) == 0 {
		return pngData, nil
	}

	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return pngData, nil
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, image.Point{}, draw.Src)

	style := m.config.AnnotationStyle
	if style == nil {
		style = DefaultAnnotationStyle()
	}

	for _, el := range elements {
		if !el.InViewport || el.IsOccluded {
			continue
		}
		if el.BBox.Width <= 0 || el.BBox.Height <= 0 {
			continue
		}
		drawBox(canvas, el.BBox, style.BoxColor, int(style.BoxWidth))
		if style.ShowIndex {
			label := fmt.Sprintf("%d", el.ID)
			if style.ShowRole && el.Role != "" {
				label = fmt.Sprintf("%d:%s", el.ID, el.Role)
			}
			drawLabel(canvas, el.BBox, label, style.LabelColor)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("screenshot: encode annotated png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(canvas *image.RGBA, box snapshot.BoundingBox, c color.Color, width int) {
	if width < 1 {
		width = 1
	}
	x0, y0 := int(box.X), int(box.Y)
	x1, y1 := int(box.X+box.Width), int(box.Y+box.Height)

	for w := 0; w < width; w++ {
		hLine(canvas, x0, x1, y0+w, c)
		hLine(canvas, x0, x1, y1-w, c)
		vLine(canvas, x0+w, y0, y1, c)
		vLine(canvas, x1-w, y0, y1, c)
	}
}

func hLine(canvas *image.RGBA, x0, x1, y int, c color.Color) {
	b := canvas.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := x0; x <= x1; x++ {
		if x >= b.Min.X && x < b.Max.X {
			canvas.Set(x, y, c)
		}
	}
}

func vLine(canvas *image.RGBA, x, y0, y1 int, c color.Color) {
	b := canvas.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := y0; y <= y1; y++ {
		if y >= b.Min.Y && y < b.Max.Y {
			canvas.Set(x, y, c)
		}
	}
}

// drawLabel fills a small solid block in the box's top-left corner. Full
// glyph rendering needs a font rasterizer the teacher never pulled in; a
// solid index-colored tab is the cheapest visual marker that still lets a
// reviewer correlate a box with its numbered element in the rendered prompt.
func drawLabel(canvas *image.RGBA, box snapshot.BoundingBox, label string, c color.Color) {
	x0, y0 := int(box.X), int(box.Y)
	w := 6 * len(label)
	h := 10
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			if x >= canvas.Bounds().Min.X && x < canvas.Bounds().Max.X &&
				y >= canvas.Bounds().Min.Y && y < canvas.Bounds().Max.Y {
				canvas.Set(x, y, c)
			}
		}
	}
}

// CompressForLLM resizes to maxWidth (preserving aspect ratio) and
// JPEG-encodes at quality, the way browser.go's ScreenshotForLLM does: a
// 1280x800 PNG becomes a far smaller JPEG before it ever reaches the prompt
// builder.
func CompressForLLM(pngData []byte, maxWidth, quality int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 800
	}
	if quality <= 0 {
		quality = 60
	}

	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("screenshot: decode png: %w", err)
	}

	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	if origWidth <= maxWidth {
		return compressToJPEG(img, quality)
	}

	newWidth := maxWidth
	newHeight := (origHeight * maxWidth) / origWidth
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	imgdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, imgdraw.Over, nil)

	return compressToJPEG(resized, quality)
}

func compressToJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("screenshot: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes data under the manager's StorageDir, enforcing MaxScreenshots
// by deleting the oldest files first.
func (m *Manager) Save(data []byte, name string) (string, error) {
	if m.config.StorageDir == "" {
		return "", fmt.Errorf("screenshot: no storage dir configured")
	}

	ext := "png"
	if m.config.ImageFormat == "jpeg" {
		ext = "jpg"
	}
	filename := fmt.Sprintf("%s_%d.%s", sanitizeFilename(name), time.Now().UnixNano(), ext)
	path := filepath.Join(m.config.StorageDir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("screenshot: write %s: %w", path, err)
	}

	if m.config.MaxScreenshots > 0 {
		if err := m.enforceMax(); err != nil {
			return path, err
		}
	}
	return path, nil
}

func (m *Manager) enforceMax() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	if len(paths) <= m.config.MaxScreenshots {
		return nil
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: p, modTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.Before(entries[j].modTime) })

	excess := len(entries) - m.config.MaxScreenshots
	for i := 0; i < excess; i++ {
		_ = os.Remove(entries[i].path)
	}
	return nil
}

// List returns every screenshot file path under StorageDir.
func (m *Manager) List() ([]string, error) {
	if m.config.StorageDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("screenshot: list %s: %w", m.config.StorageDir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isScreenshotFile(e.Name()) {
			paths = append(paths, filepath.Join(m.config.StorageDir, e.Name()))
		}
	}
	return paths, nil
}

// Clear removes every screenshot file under StorageDir, leaving other files
// untouched.
func (m *Manager) Clear() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("screenshot: remove %s: %w", p, err)
		}
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeFilename strips characters unsafe for a filesystem path, maps
// spaces to underscores, and caps length at 50.
func sanitizeFilename(name string) string {
	if strings.TrimSpace(name) == "" {
		if name == "" {
			return "screenshot"
		}
		// whitespace-only input: every space becomes an underscore.
		return strings.Repeat("_", len(name))
	}

	s := strings.ReplaceAll(name, " ", "_")
	s = nonAlnum.ReplaceAllString(s, "")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// isScreenshotFile reports whether name has a recognized, case-sensitive
// screenshot extension.
func isScreenshotFile(name string) bool {
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
