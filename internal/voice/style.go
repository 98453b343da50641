package voice

// Feedback levels control whether the fast acknowledgment path runs for a
// style.
const (
	FeedbackFull  = "full"
	FeedbackBrief = "brief"
	FeedbackNone  = "none"
)

// Style shapes both the reply register and the synthesis prosody.
type Style struct {
	Name string
	// PromptModifier is appended to the system prompt.
	PromptModifier string
	// Exaggeration and SpeechRate are passed through to synthesis.
	Exaggeration float64
	SpeechRate   float64
	// Feedback selects the acknowledgment behaviour for this style.
	Feedback string
}

var styles = map[string]Style{
	"normal": {
		Name:         "normal",
		Exaggeration: 0.5,
		SpeechRate:   1.0,
		Feedback:     FeedbackFull,
	},
	"formal": {
		Name:           "formal",
		PromptModifier: "Use a formal, precise register. No slang, no filler.",
		Exaggeration:   0.3,
		SpeechRate:     0.95,
		Feedback:       FeedbackBrief,
	},
	"concise": {
		Name:           "concise",
		PromptModifier: "Answer in as few words as possible. One or two short sentences.",
		Exaggeration:   0.4,
		SpeechRate:     1.05,
		Feedback:       FeedbackNone,
	},
	"immersive": {
		Name:           "immersive",
		PromptModifier: "Stay fully in character as the ship's voice interface. Never break the fiction.",
		Exaggeration:   0.7,
		SpeechRate:     1.0,
		Feedback:       FeedbackFull,
	},
	"learning": {
		Name:           "learning",
		PromptModifier: "Explain unfamiliar terms as they come up. Prefer plain language over jargon.",
		Exaggeration:   0.5,
		SpeechRate:     0.9,
		Feedback:       FeedbackFull,
	},
}

// StyleByName resolves a style, falling back to normal for unknown names.
func StyleByName(name string) Style {
	if s, ok := styles[name]; ok {
		return s
	}
	return styles["normal"]
}

// StyleNames lists the supported styles.
func StyleNames() []string {
	return []string{"normal", "formal", "concise", "immersive", "learning"}
}
