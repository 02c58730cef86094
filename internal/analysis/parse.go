package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// rawSegment mirrors the JSON object the model is asked to produce.
type rawSegment struct {
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	ViralityScore json.RawMessage `json:"virality_score"`
	Explanation   string          `json:"explanation"`
	Caption       string          `json:"suggested_caption"`
	SRTContent    string          `json:"srt_content"`
}

// ParseSegments decodes model output into segments. It accepts a bare JSON
// array or an object with a "segments" array, optionally wrapped in a
// Markdown code fence. Malformed output returns nil.
func ParseSegments(text string) []Segment {
	text = stripFence(text)
	if text == "" {
		return nil
	}

	var raws []rawSegment
	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		var wrapped struct {
			Segments []rawSegment `json:"segments"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil
		}
		raws = wrapped.Segments
	}

	segments := make([]Segment, 0, len(raws))
	for _, r := range raws {
		if strings.TrimSpace(r.StartTime) == "" || strings.TrimSpace(r.EndTime) == "" {
			continue
		}
		rationale := strings.TrimSpace(r.Explanation)
		if rationale == "" {
			rationale = strings.TrimSpace(r.Caption)
		}
		segments = append(segments, Segment{
			Start:     strings.TrimSpace(r.StartTime),
			End:       strings.TrimSpace(r.EndTime),
			Score:     parseScore(r.ViralityScore),
			Rationale: rationale,
			Captions:  strings.TrimSpace(r.SRTContent),
		})
	}
	if len(segments) == 0 {
		return nil
	}
	return segments
}

// parseScore accepts a number or a numeric string and clamps to [0, 100].
func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}
	return min(max(int(f+0.5), 0), 100)
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
