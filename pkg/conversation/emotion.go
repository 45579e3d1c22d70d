package conversation

// Emotion is an inferred affect label.
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionExcited    Emotion = "excited"
	EmotionSad        Emotion = "sad"
	EmotionAngry      Emotion = "angry"
	EmotionConfused   Emotion = "confused"
	EmotionHappy      Emotion = "happy"
	EmotionFrustrated Emotion = "frustrated"
)

// AnalyzeEmotion maps prosody metrics to an emotion. Rules are checked in
// order; missing pitch or rate yields neutral.
func AnalyzeEmotion(m AudioMetrics) Emotion {
	if m.Pitch == nil || m.Rate == nil || *m.Pitch == 0 || *m.Rate == 0 {
		return EmotionNeutral
	}
	pitch, rate := *m.Pitch, *m.Rate
	volume, pause := value(m.Volume), value(m.PauseRatio)

	switch {
	case pitch > 1.3 && rate > 1.2:
		return EmotionExcited
	case pitch < 0.8 && rate < 0.8:
		return EmotionSad
	case volume > 1.3 && rate > 1.1:
		return EmotionAngry
	case pause > 0.4:
		return EmotionConfused
	case pitch > 1.1 && pitch < 1.3:
		return EmotionHappy
	}
	return EmotionNeutral
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

var steeringNotes = map[Emotion]string{
	EmotionFrustrated: "The user seems frustrated. Be extra patient and supportive.",
	EmotionConfused:   "The user seems confused. Provide clearer explanations with examples.",
	EmotionExcited:    "The user is engaged and excited. Match their energy.",
}

// SteeringNote returns the one-off instruction for emotion, or "".
func SteeringNote(e Emotion) string {
	return steeringNotes[e]
}
