package gateway

import (
	"encoding/xml"
)

const twimlVoice = "alice"

// Voice menu prompts.
const (
	VoiceGreeting = "Hello. This is your LifeSignal check in."
	VoiceMenu     = "Press 1 if you are okay. Press 2 if you need help."
	VoiceNoInput  = "We did not receive an input. Goodbye."
	VoiceGoodbye  = "Thank you. Goodbye."
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []interface{}
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	NumDigits int      `xml:"numDigits,attr"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	Timeout   int      `xml:"timeout,attr"`
	Say       twimlSay
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func say(text string) twimlSay {
	return twimlSay{Voice: twimlVoice, Text: text}
}

// VoiceMenuTwiML greets the callee and gathers one digit posted to actionURL.
func VoiceMenuTwiML(actionURL string) ([]byte, error) {
	return renderTwiML(
		say(VoiceGreeting),
		twimlGather{NumDigits: 1, Action: actionURL, Method: "POST", Timeout: 8, Say: say(VoiceMenu)},
		say(VoiceNoInput),
		twimlHangup{},
	)
}

// VoiceGoodbyeTwiML ends the call after digits were received.
func VoiceGoodbyeTwiML() ([]byte, error) {
	return renderTwiML(say(VoiceGoodbye), twimlHangup{})
}

func renderTwiML(verbs ...interface{}) ([]byte, error) {
	body, err := xml.Marshal(twimlResponse{Verbs: verbs})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
