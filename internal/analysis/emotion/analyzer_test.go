package emotion

import "testing"

func TestAnalyzeUrgentReply(t *testing.T) {
	decision := Analyze("how's the ship?", "Warning: hull breach on deck two!")
	if decision.Emotion != Urgent {
		t.Fatalf("expected urgent tone, got %s", decision.Emotion)
	}
	if decision.Exaggeration <= 0.2 {
		t.Fatalf("exclamation should push the tone further, got %f", decision.Exaggeration)
	}
}

func TestAnalyzeAlarmedUserGetsReassurance(t *testing.T) {
	decision := Analyze("are we under attack?!", "Scanners show two contacts nearby.")
	if decision.Emotion != Reassuring {
		t.Fatalf("expected reassuring tone, got %s", decision.Emotion)
	}
	if decision.RateShift >= 0 {
		t.Fatalf("reassurance should slow delivery, got %f", decision.RateShift)
	}
}

func TestAnalyzeUpbeatReply(t *testing.T) {
	decision := Analyze("did the trade go through?", "Good news, the sale completed at full price.")
	if decision.Emotion != Upbeat {
		t.Fatalf("expected upbeat tone, got %s", decision.Emotion)
	}
}

func TestAnalyzeNeutralDefault(t *testing.T) {
	decision := Analyze("what time is it?", "It is fourteen hundred hours.")
	if decision.Emotion != Neutral || decision.Exaggeration != 0 || decision.RateShift != 0 {
		t.Fatalf("expected neutral baseline, got %+v", decision)
	}
}
