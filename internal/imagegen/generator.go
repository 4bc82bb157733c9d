// Package imagegen renders the optional AI hazard banner and the Open Graph
// share card.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/hazardmap/internal/hazard"
)

// Generator creates hazard banners with OpenAI's image API.
type Generator struct {
	client openai.Client
	model  string
}

// NewGenerator returns an error when no API key is configured.
func NewGenerator(apiKey string, opts ...option.RequestOption) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Generator{
		client: client,
		model:  "gpt-image-1",
	}, nil
}

// Generate creates a landscape banner for a hazard level and returns PNG bytes.
func (g *Generator) Generate(ctx context.Context, level hazard.Level) ([]byte, error) {
	prompt := BuildPrompt(level)

	log.Printf("imagegen: generating banner for %s hazard", level.Slug())

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:        g.model,
		Prompt:       prompt,
		Size:         openai.ImageGenerateParamsSize1536x1024,
		Quality:      openai.ImageGenerateParamsQualityLow,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no image data returned")
	}

	imageData := resp.Data[0].B64JSON
	if imageData == "" {
		return nil, errors.New("empty image data returned")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}

	log.Printf("imagegen: generated %s banner (%d bytes)", level.Slug(), len(imageBytes))
	return imageBytes, nil
}

const promptStyle = "Wide panoramic illustration of alpine mountain valleys seen from above, " +
	"soft painterly style, muted natural colours, no text, no people, no logos."

var promptScenes = map[hazard.Level]string{
	hazard.VeryLow:  "Dry stable slopes under clear skies, calm green meadows and firm rocky ridges.",
	hazard.Low:      "Light drizzle over forested hillsides, a few damp trails, mostly stable terrain.",
	hazard.Moderate: "Heavy rain clouds over steep hillsides, swollen streams and small debris on mountain roads.",
	hazard.High:     "Torrential storm over saturated mountainsides, muddy slope failures and debris flows in the valleys.",
}

// BuildPrompt returns the image prompt for a hazard level.
func BuildPrompt(level hazard.Level) string {
	return promptScenes[level] + " " + promptStyle
}
