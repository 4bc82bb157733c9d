package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/hazardmap/internal/hazard"
)

var (
	fontLarge   font.Face
	fontRegular font.Face
	fontOnce    sync.Once
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse goregular: %w", err)
			return
		}
		fontRegular, err = opentype.NewFace(regular, &opentype.FaceOptions{
			Size:    36,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create regular face: %w", err)
			return
		}

		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse gobold: %w", err)
			return
		}
		fontLarge, err = opentype.NewFace(bold, &opentype.FaceOptions{
			Size:    96,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create large face: %w", err)
		}
	})
}

// ShareCardData is the text drawn on the share card.
type ShareCardData struct {
	Date     string
	Level    hazard.Level
	Headline float64
	HasStats bool
	SiteName string
}

// ShareCardCache keeps rendered cards per key for a short period.
type ShareCardCache struct {
	mu      sync.RWMutex
	entries map[string]shareCardEntry
	ttl     time.Duration
}

type shareCardEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewShareCardCache(ttl time.Duration) *ShareCardCache {
	return &ShareCardCache{entries: make(map[string]shareCardEntry), ttl: ttl}
}

func (c *ShareCardCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

func (c *ShareCardCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = shareCardEntry{data: data, expiresAt: now.Add(c.ttl)}
}

// Open Graph image dimensions.
const (
	OGWidth  = 1200
	OGHeight = 630
)

// GenerateShareCard composites the banner with the forecast text. A nil banner
// draws a plain gradient background instead.
func GenerateShareCard(banner []byte, data ShareCardData) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	dst := image.NewRGBA(image.Rect(0, 0, OGWidth, OGHeight))
	if len(banner) > 0 {
		src, err := imaging.Decode(bytes.NewReader(banner))
		if err != nil {
			return nil, fmt.Errorf("decode banner: %w", err)
		}
		filled := imaging.Fill(src, OGWidth, OGHeight, imaging.Center, imaging.Lanczos)
		draw.Draw(dst, dst.Bounds(), filled, image.Point{}, draw.Src)
	} else {
		drawBackground(dst)
	}

	drawGradientOverlay(dst)
	drawLegendStrip(dst, data)
	drawTextOverlay(dst, data)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode share card: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBackground(img *image.RGBA) {
	for y := 0; y < OGHeight; y++ {
		progress := float64(y) / float64(OGHeight)
		c := color.RGBA{uint8(24 + progress*10), uint8(34 + progress*15), uint8(44 + progress*20), 255}
		for x := 0; x < OGWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawGradientOverlay(img *image.RGBA) {
	bounds := img.Bounds()
	gradientHeight := 320

	for y := bounds.Max.Y - gradientHeight; y < bounds.Max.Y; y++ {
		progress := float64(y-(bounds.Max.Y-gradientHeight)) / float64(gradientHeight)
		alpha := progress * progress * 0.85

		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			orig := img.RGBAAt(x, y)
			orig.R = uint8(float64(orig.R) * (1 - alpha))
			orig.G = uint8(float64(orig.G) * (1 - alpha))
			orig.B = uint8(float64(orig.B) * (1 - alpha))
			img.SetRGBA(x, y, orig)
		}
	}
}

// drawLegendStrip paints the colormap along the top edge, with the active band taller.
func drawLegendStrip(img *image.RGBA, data ShareCardData) {
	bandWidth := OGWidth / len(hazard.Legend)
	for i, b := range hazard.Legend {
		height := 12
		if data.HasStats && b.Level == data.Level {
			height = 28
		}
		for y := 0; y < height; y++ {
			for x := i * bandWidth; x < (i+1)*bandWidth; x++ {
				img.SetRGBA(x, y, b.Color)
			}
		}
	}
}

func drawTextOverlay(img *image.RGBA, data ShareCardData) {
	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{200, 200, 200, 255}

	if data.HasStats {
		band := hazard.BandFor(data.Level)
		drawText(img, band.Label, 60, OGHeight-190, band.Color, fontLarge)
		drawText(img, fmt.Sprintf("Landslide hazard %s  |  p98 %.2f", data.Date, data.Headline), 60, OGHeight-100, white, fontRegular)
	} else {
		drawText(img, "Landslide hazard", 60, OGHeight-190, white, fontLarge)
		if data.Date != "" {
			drawText(img, "Forecast for "+data.Date, 60, OGHeight-100, white, fontRegular)
		}
	}

	site := data.SiteName
	if site == "" {
		site = "hazardmap"
	}
	drawText(img, site, 60, OGHeight-40, lightGray, fontRegular)
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
