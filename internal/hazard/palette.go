package hazard

// Palette is the page colour scheme.
type Palette struct {
	Background string
	Card       string
	CardBorder string
	Text       string
	TextMuted  string
	Accent     string
	AccentAlt  string
}

var LightPalette = Palette{
	Background: "#f4f6f8",
	Card:       "#ffffff",
	CardBorder: "#dde3ea",
	Text:       "#1a2530",
	TextMuted:  "#5f6f7f",
	Accent:     "#1976d2",
	AccentAlt:  "#d91e18",
}

var DarkPalette = Palette{
	Background: "#0f141a",
	Card:       "#1a222c",
	CardBorder: "#2a3644",
	Text:       "#e6ebf0",
	TextMuted:  "#8896a5",
	Accent:     "#64b5f6",
	AccentAlt:  "#ff7043",
}

// PaletteFor returns the palette for a theme name, defaulting to light.
func PaletteFor(theme string) Palette {
	if theme == "dark" {
		return DarkPalette
	}
	return LightPalette
}
