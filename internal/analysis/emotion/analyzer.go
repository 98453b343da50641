package emotion

import "strings"

// Label names the tone a reply chunk should be spoken with.
type Label string

const (
	Neutral    Label = "neutral"
	Upbeat     Label = "upbeat"
	Somber     Label = "somber"
	Urgent     Label = "urgent"
	Reassuring Label = "reassuring"
)

// Decision is the prosody shift applied on top of the session style.
// Exaggeration is added to the style's base value; RateShift is added to
// the speech rate multiplier.
type Decision struct {
	Emotion      Label
	Exaggeration float64
	RateShift    float64
	Score        int
}

var keywordBuckets = map[Label][]string{
	Upbeat: {
		"great", "excellent", "well done", "congratulations", "profit",
		"succeeded", "completed", "cleared", "good news", "nice work",
	},
	Somber: {
		"destroyed", "lost", "failed", "sorry", "unfortunately",
		"damaged", "wrecked", "casualt", "bad news", "went down",
	},
	Urgent: {
		"warning", "alert", "critical", "immediately", "under attack",
		"hostile", "low fuel", "breach", "right now", "hurry",
	},
	Reassuring: {
		"don't worry", "no rush", "you're safe", "all clear", "handled",
		"taken care of", "nothing to worry", "relax", "it's fine", "stable",
	},
}

var toneShifts = map[Label]Decision{
	Neutral:    {Emotion: Neutral},
	Upbeat:     {Emotion: Upbeat, Exaggeration: 0.15, RateShift: 0.05},
	Somber:     {Emotion: Somber, Exaggeration: -0.1, RateShift: -0.1},
	Urgent:     {Emotion: Urgent, Exaggeration: 0.2, RateShift: 0.1},
	Reassuring: {Emotion: Reassuring, Exaggeration: -0.05, RateShift: -0.05},
}

// Analyze picks the speaking tone for one reply chunk. The reply's own
// wording wins; when it is flat, the user's wording decides so an alarmed
// question still gets an appropriately colored answer.
func Analyze(userUtterance, reply string) Decision {
	replyScore, replyLabel := scoreText(reply)
	if replyScore > 0 {
		return decisionFor(replyLabel, replyScore, reply)
	}

	userScore, userLabel := scoreText(userUtterance)
	if userScore > 0 {
		// Answer an alarmed or dejected user in a reassuring register.
		if userLabel == Urgent || userLabel == Somber {
			userLabel = Reassuring
		}
		return decisionFor(userLabel, userScore, reply)
	}

	return toneShifts[Neutral]
}

func scoreText(text string) (int, Label) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return 0, Neutral
	}

	best := Neutral
	bestScore := 0
	for label, keywords := range keywordBuckets {
		score := 0
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				score += 3
			}
		}
		if score > bestScore {
			best = label
			bestScore = score
		}
	}
	return bestScore, best
}

func decisionFor(label Label, score int, reply string) Decision {
	d := toneShifts[label]
	d.Score = score

	// Exclamations push the tone a little further.
	if strings.Contains(reply, "!") && (label == Upbeat || label == Urgent) {
		d.Exaggeration += 0.05
	}
	return d
}
