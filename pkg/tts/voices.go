package tts

// DefaultElevenLabsVoice is the preset used when no voice is configured.
const DefaultElevenLabsVoice = "charlotte"

// elevenLabsPresets maps persona voice names to ElevenLabs voice IDs.
var elevenLabsPresets = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa",
	"aria":      "9BWtsMINqrJLrRacOk9x",
	"sarah":     "EXAVITQu4vr4xnSDxMaL",
	"rachel":    "21m00Tcm4TlvDq8ikWAM",
	"josh":      "TxGEqnHWrfWFTfGW9XjX",
	"adam":      "pNInz6obpgDQGcFmaJgB",
}

// ResolveElevenLabsVoice maps a preset name to its voice ID. Anything else
// is taken to be a raw voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := elevenLabsPresets[name]; ok {
		return id
	}
	return name
}
