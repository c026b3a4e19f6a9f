package exiletree

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/hajimehoshi/ebiten/v2"
)

// Snapshot queues a labeled snapshot of the tree canvas, captured at the
// end of the current frame's Draw call and written to SnapshotDir as a
// WebP file with a timestamped name. Safe to call from Update or Draw.
// No-op unless the viewer is Ready.
func (t *TreeViewer) Snapshot(label string) {
	if t.state != ViewerReady {
		return
	}
	t.snapshots = append(t.snapshots, label)
}

// flushSnapshots writes every queued snapshot from the rendered canvas.
// Called at the end of TreeViewer.Draw.
func (t *TreeViewer) flushSnapshots() {
	if len(t.snapshots) == 0 || t.canvas == nil {
		return
	}

	if err := os.MkdirAll(t.cfg.SnapshotDir, 0o755); err != nil {
		debugf("snapshot: mkdir %s: %v", t.cfg.SnapshotDir, err)
		t.snapshots = t.snapshots[:0]
		return
	}

	img := canvasToNRGBA(t.canvas)
	stamp := time.Now().Format("20060102_150405")
	for _, label := range t.snapshots {
		path := fmt.Sprintf("%s/%s_%s.webp", t.cfg.SnapshotDir, stamp, sanitizeLabel(label))
		if err := writeWebP(path, img); err != nil {
			debugf("snapshot: %v", err)
		}
	}
	t.snapshots = t.snapshots[:0]
}

// canvasToNRGBA reads back the canvas pixels and converts premultiplied
// RGBA to straight-alpha NRGBA for encoding.
func canvasToNRGBA(canvas *ebiten.Image) *image.NRGBA {
	bounds := canvas.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]byte, 4*w*h)
	canvas.ReadPixels(pixels)

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(pixels); i += 4 {
		r, g, b, a := pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
		if a > 0 && a < 255 {
			r = uint8(min(int(r)*255/int(a), 255))
			g = uint8(min(int(g)*255/int(a), 255))
			b = uint8(min(int(b)*255/int(a), 255))
		}
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}
	return img
}

// writeWebP encodes an image to a WebP file at the given path.
func writeWebP(path string, img *image.NRGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "unlabeled" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
