package tts

import "strings"

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
)

// DefaultVoice is used when a requested voice is empty or unknown.
const DefaultVoice = VoiceShimmer

// OpenAIVoices lists the voices the OpenAI speech endpoint accepts.
var OpenAIVoices = []string{
	VoiceAlloy, VoiceAsh, VoiceCoral, VoiceEcho, VoiceFable,
	VoiceOnyx, VoiceNova, VoiceSage, VoiceShimmer,
}

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"aria":      "9BWtsMINqrJLrRacOk9x",
	"sarah":     "EXAVITQu4vr4xnSDxMaL",
	"lily":      "pFZP5JQG7iQjIQuC4Bku",
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"josh":      "TxGEqnHWrfWFTfGW9XjX",
	"adam":      "pNInz6obpgDQGcFmaJgB",
}

// DefaultElevenLabsVoice is the default ElevenLabs preset.
const DefaultElevenLabsVoice = "rachel"

// ResolveVoice returns name if it is one of known (case-insensitive),
// otherwise fallback. Expert personas describe their voice in prose
// ("Calm and soothing"), which silently resolves to fallback.
func ResolveVoice(name string, known []string, fallback string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, v := range known {
		if v == name {
			return v
		}
	}
	return fallback
}

// ResolveElevenLabsVoice returns the voice ID for a preset name. Raw IDs
// (20 alphanumeric characters) pass through; anything else maps to the
// default preset.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id
	}
	if len(name) == 20 && isAlnum(name) {
		return name
	}
	return ElevenLabsVoices[DefaultElevenLabsVoice]
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
