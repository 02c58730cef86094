package media

import (
	"fmt"
	"strings"
)

// verticalCrop keeps the full height and the horizontally centered 9:16
// window, rounded down to an even width for libx264.
const verticalCrop = "crop=trunc(ih*9/16/2)*2:ih:(iw-ow)/2:0"

// FilterChain helps construct an ffmpeg -vf filter chain.
type FilterChain struct {
	filters []string
}

// NewFilterChain creates an empty filter chain.
func NewFilterChain() *FilterChain {
	return &FilterChain{filters: make([]string, 0, 2)}
}

// VerticalCrop adds the 9:16 center crop.
func (fc *FilterChain) VerticalCrop() *FilterChain {
	fc.filters = append(fc.filters, verticalCrop)
	return fc
}

// Subtitles burns the SubRip file at path using an ASS force_style string.
func (fc *FilterChain) Subtitles(path, forceStyle string) *FilterChain {
	if path == "" {
		return fc
	}
	f := "subtitles=" + escapeFilterValue(path)
	if forceStyle != "" {
		f += fmt.Sprintf(":force_style='%s'", forceStyle)
	}
	fc.filters = append(fc.filters, f)
	return fc
}

// Build returns the complete filter string joined with commas.
func (fc *FilterChain) Build() string {
	return strings.Join(fc.filters, ",")
}

// escapeFilterValue escapes characters that are special inside a filter option value.
func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `/`)
	r := strings.NewReplacer(
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
		`;`, `\;`,
	)
	return r.Replace(v)
}
