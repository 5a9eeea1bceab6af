package generate

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Context carries the raw notes a generation request is built from.
type Context struct {
	Notes string
	Mood  string
	Angle string
}

// promptRules is the fixed instruction block every prompt starts with.
const promptRules = `You are writing ONE post for X (Twitter) in a specific format.
Goal: Turn messy build notes into a structured, engaging post.

OUTPUT FORMAT (follow exactly):
[Opening line - what you're sharing]

→ [Win/update 1]
→ [Win/update 2]
→ [Win/update 3 (optional)]

[Closing line with energy]

STYLE RULES:
- Use → arrows for each win/update (2-4 items max)
- Opening line sets context (e.g., "Today's wins:", "Shipped some stuff:", "Quick update:")
- Closing line has forward energy (what's next, or a vibe)
- Emojis allowed but sparse (1-2 max, at the end)
- Keep total post under 280 characters
- Sound like a real person texting a friend, not a LinkedIn post

TONE:
- Casual, direct, builder energy
- Specific details > vague claims
- Show personality (humor, honesty, excitement all okay)
- It's fine to say "LFG", "let's go", "shipping", "building" etc.

AVOID:
- Hashtags
- Generic motivational fluff ("the key is...", "I believe...")
- Sounding like a press release or ad
- Being boring`

var modeOpeners = map[string]string{
	"daily_wins":      "Today's wins:",
	"lesson_learned":  "Learned something today:",
	"shipping_update": "Shipped some stuff:",
}

// PromptBuilder assembles generation prompts from the static rules, an
// optional style profile, sampled training posts, and the request context.
// Missing or malformed data files degrade to a rules-only prompt; they are
// never an error.
type PromptBuilder struct {
	// StyleProfilePath points at a JSON style profile. Optional.
	StyleProfilePath string
	// TrainingPostsPath points at a JSON list of past posts, either plain
	// strings or objects with a "text" field. Optional.
	TrainingPostsPath string

	// Rand drives training-post sampling; defaults to the global source.
	Rand *rand.Rand
}

type styleProfile struct {
	Guidance struct {
		RecommendedCharRange []int    `json:"recommended_char_range"`
		Notes                []string `json:"notes"`
	} `json:"guidance"`
}

// Build returns the full prompt for one generation call.
func (b *PromptBuilder) Build(mode string, c Context) string {
	opener, ok := modeOpeners[mode]
	if !ok {
		opener = modeOpeners["daily_wins"]
	}

	var parts []string

	if style := b.styleGuidance(); style != "" {
		parts = append(parts, style)
	}
	if samples := b.sampleTrainingPosts(3); len(samples) > 0 {
		var sb strings.Builder
		sb.WriteString("Reference tone (match the vibe, not the words):")
		for _, s := range samples {
			sb.WriteString("\n- " + s)
		}
		parts = append(parts, sb.String())
	}

	if strings.TrimSpace(c.Notes) != "" {
		mood := c.Mood
		if mood == "" {
			mood = "building"
		}
		angle := c.Angle
		if angle == "" {
			angle = "more tomorrow"
		}
		parts = append(parts, fmt.Sprintf(`USER'S RAW NOTES (transform these into the structured format):
%s

Mood: %s
What's next: %s

INSTRUCTIONS:
- Extract 2-4 concrete wins/updates from the notes above
- Use the → arrow format
- Suggested opener: %q
- Add a closing line with energy
- Keep their personality, just structure it nicely`, c.Notes, mood, angle, opener))
	} else {
		parts = append(parts, fmt.Sprintf(`No specific context provided. Create a realistic example post using the format.
Suggested opener: %q`, opener))
	}

	parts = append(parts, "Write the post now:")
	return promptRules + "\n\n" + strings.Join(parts, "\n\n")
}

// styleGuidance renders the aggregate style profile as prompt lines. Only
// guidance is used, never raw post text.
func (b *PromptBuilder) styleGuidance() string {
	if b.StyleProfilePath == "" {
		return ""
	}
	raw, err := os.ReadFile(b.StyleProfilePath)
	if err != nil {
		return ""
	}
	var profile styleProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return ""
	}

	lo, hi := 120, 280
	if r := profile.Guidance.RecommendedCharRange; len(r) == 2 {
		lo, hi = r[0], r[1]
	}

	lines := []string{
		"Style guidance:",
		fmt.Sprintf("- Target %d-%d characters.", lo, hi),
		"- Be specific about what you did.",
		"- Energy is good. Personality is good.",
	}
	var notes []string
	for _, n := range profile.Guidance.Notes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, "- "+n)
		}
	}
	if len(notes) > 0 {
		lines = append(lines, "Voice cues:")
		lines = append(lines, notes...)
	}
	return strings.Join(lines, "\n")
}

// sampleTrainingPosts returns up to n random past posts for few-shot tone.
func (b *PromptBuilder) sampleTrainingPosts(n int) []string {
	if b.TrainingPostsPath == "" {
		return nil
	}
	raw, err := os.ReadFile(b.TrainingPostsPath)
	if err != nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var texts []string
	for _, item := range items {
		if t := coercePostText(item); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	perm := b.perm(len(texts))
	if n > len(texts) {
		n = len(texts)
	}
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, texts[idx])
	}
	return out
}

func (b *PromptBuilder) perm(n int) []int {
	if b.Rand != nil {
		return b.Rand.Perm(n)
	}
	return rand.Perm(n)
}

// coercePostText accepts either a bare string or an object with "text".
func coercePostText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Text)
	}
	return ""
}
