package exiletree

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/ftrvxmtrx/tga"
	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// iconBudget is the maximum icon edge length in pixels. Source art larger
// than this is downscaled once at load time.
const iconBudget = 64

// iconExtensions is the load order tried for each transformed asset path.
var iconExtensions = [...]string{".png", ".webp", ".tga", ".jpg"}

// IconCache loads, masks, and caches node icons and class/ascendancy
// illustrations under an asset root. Loads are allocation-scoped: the
// viewer warms only the icons of currently-allocated nodes, not the whole
// graph. A failed load is cached as known-missing and never retried;
// rendering falls back to a flat circle.
type IconCache struct {
	root string

	mu      sync.Mutex
	icons   map[string]*ebiten.Image
	missing map[string]struct{}
}

// NewIconCache creates a cache rooted at the collaborator-supplied asset
// base path.
func NewIconCache(root string) *IconCache {
	return &IconCache{
		root:    root,
		icons:   make(map[string]*ebiten.Image),
		missing: make(map[string]struct{}),
	}
}

// IconPath maps a node's asset reference to its on-disk location, minus the
// extension: lowercase base name, "icons" subfolder. The transformation is
// deterministic so hosts can pre-bake asset bundles.
func (c *IconCache) IconPath(ref string) string {
	base := strings.ToLower(path.Base(ref))
	base = strings.TrimSuffix(base, path.Ext(base))
	return filepath.Join(c.root, "icons", base)
}

// illustrationPath is IconPath for class/ascendancy backdrop art.
func (c *IconCache) illustrationPath(name string) string {
	return filepath.Join(c.root, "illustrations", strings.ToLower(name))
}

// Get returns the cached icon for an asset reference, if loading it has
// succeeded before.
func (c *IconCache) Get(ref string) (*ebiten.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.icons[ref]
	return img, ok
}

// Warm loads a batch of icon references concurrently: fire all, await all.
// Partial failures are tolerated; failed references go into the
// known-missing set. Already-cached and known-missing references are
// skipped. Warm never fails: asset problems degrade rendering, they do not
// stop it.
func (c *IconCache) Warm(refs []string) {
	var wg sync.WaitGroup
	for _, ref := range refs {
		if ref == "" || c.seen(ref) {
			continue
		}
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			c.loadIcon(ref)
		}(ref)
	}
	wg.Wait()
}

// Illustration returns backdrop art by name ("warrior", "Titan"), loading
// it on first request. Illustrations keep their full size and shape.
func (c *IconCache) Illustration(name string) (*ebiten.Image, bool) {
	key := "illustration/" + name
	c.mu.Lock()
	if img, ok := c.icons[key]; ok {
		c.mu.Unlock()
		return img, true
	}
	if _, miss := c.missing[key]; miss {
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()

	src, err := loadImageFile(c.illustrationPath(name))
	c.store(key, src, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.icons[key]
	return img, ok
}

func (c *IconCache) seen(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.icons[ref]; ok {
		return true
	}
	_, miss := c.missing[ref]
	return miss
}

// loadIcon loads, downscales, and circle-masks one icon, then caches the
// outcome either way.
func (c *IconCache) loadIcon(ref string) {
	src, err := loadImageFile(c.IconPath(ref))
	if err == nil {
		src = scaleTo(src, iconBudget)
		circleCrop(src)
	}
	c.store(ref, src, err)
}

// store records a load outcome. Errors are logged as AssetLoadError and the
// key becomes known-missing.
func (c *IconCache) store(key string, src *image.NRGBA, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		debugf("%v", &AssetLoadError{Path: key, Err: err})
		c.missing[key] = struct{}{}
		return
	}
	c.icons[key] = ebiten.NewImageFromImage(src)
}

// loadImageFile reads and decodes the first existing candidate file for an
// extension-less path. Supported formats: PNG, JPEG, TGA, WebP.
func loadImageFile(stem string) (*image.NRGBA, error) {
	var firstErr error
	for _, ext := range iconExtensions {
		f, err := os.Open(stem + ext)
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return toNRGBA(img), nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("no file for %s", stem)
}

// toNRGBA converts a decoded image to NRGBA without premultiplication.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// scaleTo downscales an image so its longest edge is at most max pixels.
// Smaller images pass through untouched.
func scaleTo(src *image.NRGBA, max int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// circleCrop zeroes alpha outside the inscribed circle, in place. Node
// icons render inside circular frames; pre-cropping here keeps the draw
// path a plain image blit.
func circleCrop(img *image.NRGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx := float64(w) / 2
	cy := float64(h) / 2
	r := cx
	if cy < r {
		r = cy
	}
	r2 := r * r
	for y := 0; y < h; y++ {
		dy := float64(y) + 0.5 - cy
		for x := 0; x < w; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy > r2 {
				img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)+3] = 0
			}
		}
	}
}
