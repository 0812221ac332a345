// Package twiml builds telephony response documents: verbs to play or speak
// prompts, gather caller input, and end or transfer the call.
package twiml

import (
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

// Response is the root document returned to the telephony webhook. Verbs
// execute in order.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// MarshalXML writes the verbs in insertion order inside <Response>.
func (r Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "Response"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type Play struct {
	XMLName xml.Name `xml:"Play"`
	Loop    int      `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Gather collects speech or keypresses and posts them to Action.
type Gather struct {
	XMLName  xml.Name `xml:"Gather"`
	Input    string   `xml:"input,attr,omitempty"`
	Action   string   `xml:"action,attr,omitempty"`
	Method   string   `xml:"method,attr,omitempty"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Hints    string   `xml:"hints,attr,omitempty"`
	Verbs    []any
}

func (g Gather) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "Gather"
	start.Attr = start.Attr[:0]
	addAttr := func(name, value string) {
		if value != "" {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: name}, Value: value})
		}
	}
	addAttr("input", g.Input)
	addAttr("action", g.Action)
	addAttr("method", g.Method)
	if g.Timeout > 0 {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "timeout"}, Value: strconv.Itoa(g.Timeout)})
	}
	addAttr("language", g.Language)
	addAttr("hints", g.Hints)
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range g.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type Dial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

// Render serializes the document with the XML declaration the telephony
// provider expects.
func (r Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// PlayableURL reports whether a Play verb may carry this URL: absolute http or
// https with a host. Anything else must fall back to Say.
func PlayableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SayVoice returns the fallback speech voice for a language.
func SayVoice(lang session.Language) string {
	if lang == session.LangSpanish {
		return "Polly.Mia"
	}
	return "Polly.Joanna"
}

// Validate walks the document and replaces any Play verb whose URL could not
// be played with a Say of the supplied fallback text, so the caller always
// hears something.
func (r *Response) Validate(lang session.Language, fallbackText string) {
	r.Verbs = validateVerbs(r.Verbs, lang, fallbackText)
}

func validateVerbs(verbs []any, lang session.Language, fallbackText string) []any {
	for i, v := range verbs {
		switch verb := v.(type) {
		case Play:
			if !PlayableURL(strings.TrimSpace(verb.URL)) {
				verbs[i] = Say{Voice: SayVoice(lang), Language: string(lang), Text: fallbackText}
			}
		case Gather:
			verb.Verbs = validateVerbs(verb.Verbs, lang, fallbackText)
			verbs[i] = verb
		}
	}
	return verbs
}
