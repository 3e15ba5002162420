package deepgram

import (
	"encoding/json"
	"errors"
	"strings"

	"ghostshell/internal/domain"
)

// liveMessage is the subset of the live API's server messages GHOST reads.
// Metadata, SpeechStarted and UtteranceEnd carry no transcript and are skipped.
type liveMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Message     string `json:"message"`
	Description string `json:"description"`
}

// decodeMessage returns the fragment carried by payload, if any. A provider
// error message is returned as err.
func decodeMessage(payload []byte) (domain.RecognitionFragment, bool, error) {
	var msg liveMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.RecognitionFragment{}, false, nil
	}

	if strings.EqualFold(msg.Type, "Error") {
		text := strings.TrimSpace(msg.Description)
		if text == "" {
			text = strings.TrimSpace(msg.Message)
		}
		if text == "" {
			text = "deepgram returned an unknown error"
		}
		return domain.RecognitionFragment{}, false, errors.New(text)
	}

	if len(msg.Channel.Alternatives) == 0 {
		return domain.RecognitionFragment{}, false, nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return domain.RecognitionFragment{}, false, nil
	}
	return domain.RecognitionFragment{Text: text, IsFinal: msg.IsFinal || msg.SpeechFinal}, true, nil
}
