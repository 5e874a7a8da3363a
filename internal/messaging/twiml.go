package messaging

import (
	"encoding/xml"
)

const (
	voiceLanguage = "es-CO"
	voiceName     = "Polly.Mia-Neural"
)

// Spoken copy owned by the voice adapter.
const (
	VoiceNoSpeechPrompt = "Lo siento, no pude escucharlo. ¿Puede repetir por favor?"
	VoiceUnavailable    = "Lo sentimos, este número no está disponible. Por favor intente más tarde."
)

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr"`
	Language string   `xml:"language,attr"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName             xml.Name `xml:"Gather"`
	Input               string   `xml:"input,attr"`
	Action              string   `xml:"action,attr"`
	Method              string   `xml:"method,attr"`
	Language            string   `xml:"language,attr"`
	SpeechTimeout       string   `xml:"speechTimeout,attr"`
	SpeechModel         string   `xml:"speechModel,attr"`
	ActionOnEmptyResult bool     `xml:"actionOnEmptyResult,attr"`
	Say                 twimlSay
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Say      []twimlSay
	Gather   *twimlGather
	Redirect *twimlRedirect
	Hangup   *twimlHangup
}

func say(text string) twimlSay {
	return twimlSay{Voice: voiceName, Language: voiceLanguage, Text: text}
}

// GatherTwiML speaks text and listens for the caller's next utterance,
// posting it to action. Silence also posts, with an empty SpeechResult.
func GatherTwiML(text, action string) string {
	return renderTwiML(twimlResponse{
		Gather: &twimlGather{
			Input:               "speech",
			Action:              action,
			Method:              "POST",
			Language:            voiceLanguage,
			SpeechTimeout:       "auto",
			SpeechModel:         "phone_call",
			ActionOnEmptyResult: true,
			Say:                 say(text),
		},
		Redirect: &twimlRedirect{Method: "POST", URL: action},
	})
}

// HangupTwiML speaks text and ends the call.
func HangupTwiML(text string) string {
	return renderTwiML(twimlResponse{
		Say:    []twimlSay{say(text)},
		Hangup: &twimlHangup{},
	})
}

// EmptyTwiML acknowledges a messaging webhook without replying inline.
func EmptyTwiML() string {
	return renderTwiML(twimlResponse{})
}

func renderTwiML(resp twimlResponse) string {
	out, err := xml.Marshal(resp)
	if err != nil {
		// only reachable with unsupported field types
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(out)
}
