package imagegen

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lox/hazardmap/internal/hazard"
)

func TestBuildPrompt(t *testing.T) {
	for _, b := range hazard.Legend {
		p := BuildPrompt(b.Level)
		if !strings.Contains(p, "no text") {
			t.Errorf("%s prompt missing style: %s", b.Label, p)
		}
	}
	if BuildPrompt(hazard.High) == BuildPrompt(hazard.VeryLow) {
		t.Error("levels should have distinct prompts")
	}
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	if _, err := NewGenerator(""); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewGenerator("sk-test"); err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
}

func TestCache_GetSetList(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Hour)

	if _, ok := c.Get(hazard.High); ok {
		t.Fatal("empty cache returned a banner")
	}
	if _, ok := c.GetAny(); ok {
		t.Fatal("empty cache returned a fallback")
	}

	if err := c.Set(hazard.High, []byte("high")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(hazard.Low, []byte("low")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	os.WriteFile(filepath.Join(dir, "other.png"), []byte("x"), 0o644)

	data, ok := c.Get(hazard.High)
	if !ok || string(data) != "high" {
		t.Errorf("Get(High) = %q, %v", data, ok)
	}

	levels := c.List()
	if len(levels) != 2 || levels[0] != hazard.Low || levels[1] != hazard.High {
		t.Errorf("List() = %v", levels)
	}

	if _, ok := c.GetAny(); !ok {
		t.Error("GetAny should find a banner")
	}
}

func TestCache_StaleEntries(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Minute)
	if err := c.Set(hazard.Moderate, []byte("old")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	os.Chtimes(c.path(hazard.Moderate), old, old)

	if _, ok := c.Get(hazard.Moderate); ok {
		t.Error("stale banner returned")
	}
	if _, ok := c.GetAny(); !ok {
		t.Error("GetAny should ignore age")
	}
}

func TestGenerateShareCard_Fallback(t *testing.T) {
	out, err := GenerateShareCard(nil, ShareCardData{Date: "2024-05-01", Level: hazard.High, Headline: 0.81, HasStats: true})
	if err != nil {
		t.Fatalf("GenerateShareCard: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != OGWidth || img.Bounds().Dy() != OGHeight {
		t.Errorf("size = %v", img.Bounds())
	}
	// The active band of the legend strip is drawn taller.
	r, g, b, _ := img.At(OGWidth-10, 20).RGBA()
	if uint8(r>>8) != 217 || uint8(g>>8) != 30 || uint8(b>>8) != 24 {
		t.Errorf("legend strip pixel = %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestGenerateShareCard_WithBanner(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			src.SetRGBA(x, y, color.RGBA{0, 128, 255, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := GenerateShareCard(buf.Bytes(), ShareCardData{Date: "2024-05-01"})
	if err != nil {
		t.Fatalf("GenerateShareCard: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, g, b, _ := img.At(OGWidth/2, OGHeight/3).RGBA()
	if diff := int(g>>8) - 128; diff < -2 || diff > 2 || b>>8 < 253 {
		t.Errorf("banner not composited, got g=%d b=%d", g>>8, b>>8)
	}

	if _, err := GenerateShareCard([]byte("not an image"), ShareCardData{}); err == nil {
		t.Error("expected decode error")
	}
}

func TestShareCardCache(t *testing.T) {
	c := NewShareCardCache(time.Minute)
	if _, ok := c.Get("2024-05-01"); ok {
		t.Fatal("empty cache hit")
	}
	c.Set("2024-05-01", []byte("card"))
	if data, ok := c.Get("2024-05-01"); !ok || string(data) != "card" {
		t.Errorf("Get = %q, %v", data, ok)
	}

	expired := NewShareCardCache(-time.Second)
	expired.Set("k", []byte("x"))
	if _, ok := expired.Get("k"); ok {
		t.Error("expired entry returned")
	}
}

type stubGenerator struct {
	calls int
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, level hazard.Level) ([]byte, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return []byte("banner-" + level.Slug()), nil
}

func TestBanners_EnsureGeneratesOnce(t *testing.T) {
	gen := &stubGenerator{}
	b := NewBanners(gen, NewCache(t.TempDir(), time.Hour))

	for i := 0; i < 3; i++ {
		data, err := b.Ensure(context.Background(), hazard.Moderate)
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if string(data) != "banner-moderate" {
			t.Errorf("data = %q", data)
		}
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}

	if data, ok := b.Cached(hazard.High); !ok || string(data) != "banner-moderate" {
		t.Errorf("Cached fallback = %q, %v", data, ok)
	}
}

func TestBanners_Disabled(t *testing.T) {
	b := NewBanners(nil, NewCache(t.TempDir(), time.Hour))
	if b.Enabled() {
		t.Fatal("expected disabled")
	}
	if _, err := b.Ensure(context.Background(), hazard.Low); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestBanners_GeneratorError(t *testing.T) {
	b := NewBanners(&stubGenerator{err: errors.New("quota")}, NewCache(t.TempDir(), time.Hour))
	if _, err := b.Ensure(context.Background(), hazard.Low); err == nil {
		t.Error("expected error")
	}
}
