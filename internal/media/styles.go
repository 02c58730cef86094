package media

import (
	"sort"
	"strings"
)

// DefaultStyle is used when no style, or an unknown style, is requested.
const DefaultStyle = "Hormozi"

// captionStyles maps a style name to its ASS force_style preset.
// Colours are &HAABBGGRR.
var captionStyles = map[string]string{
	// Bold yellow with a thick outline.
	"Hormozi": "Fontname=Arial,FontSize=24,PrimaryColour=&H0000FFFF,OutlineColour=&H00000000,BorderStyle=1,Outline=2,Shadow=0,MarginV=25,Bold=1,Alignment=2",
	"Classic": "Fontname=Arial,FontSize=24,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,BorderStyle=1,Outline=1,Shadow=0,MarginV=20,Alignment=2",
	"Minimal": "Fontname=Arial,FontSize=16,PrimaryColour=&H00DDDDDD,OutlineColour=&H80000000,BorderStyle=1,Outline=0,Shadow=0,MarginV=15,Alignment=2",
	// Cyan text, magenta glow.
	"Neon": "Fontname=Arial,FontSize=26,PrimaryColour=&H00FFFF00,OutlineColour=&H00FF00FF,BorderStyle=1,Outline=2,Shadow=0,MarginV=25,Bold=1,Alignment=2",
	// Opaque box behind white text.
	"Boxed": "Fontname=Arial,FontSize=24,PrimaryColour=&H00FFFFFF,BackColour=&H80000000,BorderStyle=3,Outline=0,Shadow=0,MarginV=20,Alignment=2",
}

// StyleNames returns the predefined caption style names in sorted order.
func StyleNames() []string {
	names := make([]string, 0, len(captionStyles))
	for name := range captionStyles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveStyle returns the canonical style name and its force_style preset.
// Matching is case-insensitive; unknown or empty names resolve to DefaultStyle.
func ResolveStyle(name string) (string, string) {
	name = strings.TrimSpace(name)
	for canonical, preset := range captionStyles {
		if strings.EqualFold(canonical, name) {
			return canonical, preset
		}
	}
	return DefaultStyle, captionStyles[DefaultStyle]
}
