package analysis

import (
	"strings"

	"github.com/maauso/viralclips/internal/project"
)

const basePrompt = `You are a short-form video editor. Watch the attached video and pick the 3 moments most likely to perform well as standalone vertical clips.

For each moment return:
- "start_time": clip start as "MM:SS" (or "HH:MM:SS" for long videos)
- "end_time": clip end in the same format
- "virality_score": integer from 0 to 100
- "explanation": one or two sentences on why the moment works
- "suggested_caption": a short hook to post with the clip
- "srt_content": a SubRip transcript of the spoken words, timed from 00:00:00,000 at start_time

Respond with a JSON array only, ordered from highest to lowest score.`

// BuildPrompt returns the analysis prompt for the given duration preference.
func BuildPrompt(pref project.DurationPreference) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	switch pref {
	case project.DurationShort:
		sb.WriteString("\n\nEach clip must last between 15 and 30 seconds.")
	case project.DurationLong:
		sb.WriteString("\n\nEach clip must last between 45 and 60 seconds.")
	default:
		sb.WriteString("\n\nChoose whatever length makes each moment self-contained, up to 90 seconds.")
	}
	return sb.String()
}
