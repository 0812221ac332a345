// Package intent maps recognized caller speech (or a keypress) onto a closed
// set of dialogue intents using deterministic per-language keyword matching.
package intent

import (
	"strings"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

// Kind is a classified category of caller meaning.
type Kind string

const (
	KindGreetingAck    Kind = "greeting_ack"
	KindAskHours       Kind = "ask_hours"
	KindAskServices    Kind = "ask_services"
	KindAskInsurance   Kind = "ask_insurance"
	KindAskLocation    Kind = "ask_location"
	KindBookNew        Kind = "book_new"
	KindBookExisting   Kind = "book_existing"
	KindReschedule     Kind = "reschedule"
	KindSwitchLanguage Kind = "switch_language"
	KindProvideSlot    Kind = "provide_slot_value"
	KindAffirm         Kind = "affirm"
	KindDeny           Kind = "deny"
	KindSpeakToHuman   Kind = "speak_to_human"
	KindEmergency      Kind = "emergency"
	KindUnrecognized   Kind = "unrecognized"
)

// Intent carries the classified kind plus its payload: the target language
// for a switch command, or the raw text for a slot value.
type Intent struct {
	Kind   Kind
	Target session.Language
	Raw    string
}

// SlotValue builds a PROVIDE_SLOT_VALUE intent. The dialogue engine uses it
// in slot-collection stages, where free speech that matches no command is the
// value itself.
func SlotValue(raw string) Intent {
	return Intent{Kind: KindProvideSlot, Raw: raw}
}

type rule struct {
	kind    Kind
	target  session.Language
	phrases []string
}

// Rule order is the tie-break priority. Emergency and language switching come
// first: they must win over any stage-local phrasing.
var englishRules = []rule{
	{kind: KindEmergency, phrases: []string{"emergency", "911", "can't breathe", "chest pain", "severe injury"}},
	{kind: KindSwitchLanguage, target: session.LangSpanish, phrases: []string{"español", "espanol", "spanish", "habla español"}},
	{kind: KindSpeakToHuman, phrases: []string{"talk to someone", "speak to someone", "talk to a person", "human", "representative", "operator", "front desk"}},
	{kind: KindReschedule, phrases: []string{"reschedule", "change appointment", "move appointment", "change my appointment", "move my appointment", "different time", "another time"}},
	{kind: KindBookExisting, phrases: []string{"existing patient", "been there before", "i'm a patient", "returning patient", "existing"}},
	{kind: KindBookNew, phrases: []string{
		"appointment", "schedule", "book", "make an appointment", "set up appointment",
		"need an appointment", "want an appointment", "would like to make", "new patient", "first visit", "new",
	}},
	{kind: KindAskHours, phrases: []string{"hours", "open", "what time do you open", "when do you close"}},
	{kind: KindAskInsurance, phrases: []string{"insurance", "covered", "my plan", "benefits"}},
	{kind: KindAskLocation, phrases: []string{"location", "address", "where are you", "directions", "parking"}},
	{kind: KindAskServices, phrases: []string{"services", "what do you do", "treatments", "adjustment", "cost", "price", "fee", "credit card", "payment", "walk in", "walk-in"}},
	{kind: KindAffirm, phrases: []string{"yes", "yeah", "yep", "sure", "correct", "that's right", "okay", "ok", "please do"}},
	{kind: KindDeny, phrases: []string{"no", "nope", "not really", "never mind", "nothing else", "that's all"}},
	{kind: KindGreetingAck, phrases: []string{"hello", "hi there", "good morning", "good afternoon"}},
}

var spanishRules = []rule{
	{kind: KindEmergency, phrases: []string{"emergencia", "911", "no puedo respirar", "dolor de pecho", "urgencia grave"}},
	{kind: KindSwitchLanguage, target: session.LangEnglish, phrases: []string{"english", "inglés", "ingles", "en inglés"}},
	{kind: KindSpeakToHuman, phrases: []string{"hablar con alguien", "hablar con una persona", "persona", "representante", "operador", "recepción"}},
	{kind: KindReschedule, phrases: []string{"cambiar cita", "cambiar mi cita", "mover cita", "mover mi cita", "reprogramar", "otra hora", "otro día", "otro dia"}},
	{kind: KindBookExisting, phrases: []string{"paciente existente", "ya soy paciente", "he ido antes", "existente"}},
	{kind: KindBookNew, phrases: []string{
		"cita", "agendar", "programar", "reservar", "hacer una cita", "necesito cita",
		"quiero cita", "quisiera cita", "consulta", "ver al doctor", "ver al médico", "paciente nuevo", "nuevo",
	}},
	{kind: KindAskHours, phrases: []string{"horario", "abierto", "a qué hora abren", "a qué hora cierran"}},
	{kind: KindAskInsurance, phrases: []string{"seguro", "aseguranza", "cobertura", "beneficios"}},
	{kind: KindAskLocation, phrases: []string{"dirección", "direccion", "dónde están", "donde estan", "ubicación", "ubicacion", "estacionamiento"}},
	{kind: KindAskServices, phrases: []string{"servicios", "tratamientos", "ajuste", "costo", "precio", "tarjeta", "pago", "sin cita"}},
	{kind: KindAffirm, phrases: []string{"sí", "si", "claro", "correcto", "está bien", "esta bien", "por favor"}},
	{kind: KindDeny, phrases: []string{"no", "nada más", "nada mas", "eso es todo", "olvídelo", "olvidelo"}},
	{kind: KindGreetingAck, phrases: []string{"hola", "buenos días", "buenos dias", "buenas tardes"}},
}

// Classify maps raw speech to an intent for the given language. It is a pure
// function: no match is a normal outcome and yields KindUnrecognized with the
// raw text preserved.
func Classify(raw string, lang session.Language) Intent {
	text := normalize(raw)
	if text == "" {
		return Intent{Kind: KindUnrecognized}
	}

	rules := englishRules
	if lang == session.LangSpanish {
		rules = spanishRules
	}

	for _, r := range rules {
		for _, phrase := range r.phrases {
			if matches(text, phrase) {
				return Intent{Kind: r.kind, Target: r.target, Raw: raw}
			}
		}
	}
	return Intent{Kind: KindUnrecognized, Raw: raw}
}

// DetectLanguage is a best-effort first-contact hint. Explicit switch
// commands remain authoritative over anything detected here.
func DetectLanguage(raw string) session.Language {
	text := normalize(raw)
	for _, marker := range []string{
		"hola", "gracias", "por favor", "buenos días", "buenos dias", "buenas tardes",
		"cita", "necesito", "quiero", "ayuda", "español", "espanol", "dolor", "espalda",
	} {
		if matches(text, marker) {
			return session.LangSpanish
		}
	}
	return session.LangEnglish
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// matches reports whether phrase occurs in text on word boundaries. Plain
// substring matching would classify "knower" as "no".
func matches(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		startOK := start == 0 || !isWordChar(text[start-1])
		endOK := end == len(text) || !isWordChar(text[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80
}
