package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

type promptKey string

const (
	promptGreeting        promptKey = "greeting"
	promptHowCanIHelp     promptKey = "how_can_i_help"
	promptClarify         promptKey = "clarify"
	promptAnythingElse    promptKey = "anything_else"
	promptGoodbye         promptKey = "goodbye"
	promptHandoff         promptKey = "handoff"
	promptEmergency       promptKey = "emergency"
	promptLanguageSwitch  promptKey = "language_switch"
	promptFAQHours        promptKey = "faq_hours"
	promptFAQLocation     promptKey = "faq_location"
	promptFAQInsurance    promptKey = "faq_insurance"
	promptFAQServices     promptKey = "faq_services"
	promptRescheduleIntro promptKey = "reschedule_intro"
	promptAskPatientType  promptKey = "ask_patient_type"
	promptAskName         promptKey = "ask_name"
	promptAskPhone        promptKey = "ask_phone"
	promptInvalidPhone    promptKey = "invalid_phone"
	promptAskReason       promptKey = "ask_reason"
	promptOfferSlots      promptKey = "offer_slots"
	promptPickSlot        promptKey = "pick_slot"
	promptNoSlots         promptKey = "no_slots"
	promptConfirmed       promptKey = "confirmed"
	promptBookingRetry    promptKey = "booking_retry"
	promptBookingInvalid  promptKey = "booking_invalid"
)

// ClinicInfo carries the business-specific wording the engine treats as
// configuration data.
type ClinicInfo struct {
	Name        string
	HoursEN     string
	HoursES     string
	LocationEN  string
	LocationES  string
	InsuranceEN string
	InsuranceES string
	ServicesEN  string
	ServicesES  string
}

// Catalog resolves prompt templates per language. Templates are parameterized
// with fmt verbs; slot values are substituted at render time.
type Catalog struct {
	templates map[promptKey]map[session.Language]string
}

func NewCatalog(info ClinicInfo) *Catalog {
	if strings.TrimSpace(info.Name) == "" {
		info.Name = "the clinic"
	}
	def := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}

	t := map[promptKey]map[session.Language]string{
		promptGreeting: {
			session.LangEnglish: fmt.Sprintf("Hello! Thank you for calling %s. How can I help you today?", info.Name),
			session.LangSpanish: fmt.Sprintf("¡Hola! Gracias por llamar a %s. ¿Cómo puedo ayudarle hoy?", info.Name),
		},
		promptHowCanIHelp: {
			session.LangEnglish: "How can I help you today?",
			session.LangSpanish: "¿Cómo puedo ayudarle hoy?",
		},
		promptClarify: {
			session.LangEnglish: "I'm sorry, I didn't catch that. Could you please repeat?",
			session.LangSpanish: "Lo siento, no entendí eso. ¿Podría repetirlo, por favor?",
		},
		promptAnythingElse: {
			session.LangEnglish: "Is there anything else I can help you with?",
			session.LangSpanish: "¿Hay algo más en lo que pueda ayudarle?",
		},
		promptGoodbye: {
			session.LangEnglish: "Thank you for calling. Goodbye!",
			session.LangSpanish: "Gracias por llamar. ¡Adiós!",
		},
		promptHandoff: {
			session.LangEnglish: "I'll connect you with someone right away. Please hold.",
			session.LangSpanish: "Le conectaré con alguien de inmediato. Por favor, espere.",
		},
		promptEmergency: {
			session.LangEnglish: "If this is a medical emergency, please hang up and dial nine one one. Otherwise, I'm connecting you with our staff immediately.",
			session.LangSpanish: "Si se trata de una emergencia médica, cuelgue y marque nueve uno uno. De lo contrario, le conecto con nuestro personal de inmediato.",
		},
		promptLanguageSwitch: {
			session.LangEnglish: "Switching to English.",
			session.LangSpanish: "Cambiando a español.",
		},
		promptFAQHours: {
			session.LangEnglish: def(info.HoursEN, "We're open Monday through Friday from 9 AM to 6 PM, and Saturdays from 9 AM to noon."),
			session.LangSpanish: def(info.HoursES, "Abrimos de lunes a viernes de 9 de la mañana a 6 de la tarde, y los sábados de 9 a mediodía."),
		},
		promptFAQLocation: {
			session.LangEnglish: def(info.LocationEN, "We're located at 123 Main Street, Suite 100, in downtown Austin."),
			session.LangSpanish: def(info.LocationES, "Estamos en el 123 de Main Street, Suite 100, en el centro de Austin."),
		},
		promptFAQInsurance: {
			session.LangEnglish: def(info.InsuranceEN, "We accept most major insurance plans. Our staff can verify your benefits before your appointment."),
			session.LangSpanish: def(info.InsuranceES, "Aceptamos la mayoría de los seguros principales. Nuestro personal puede verificar sus beneficios antes de su cita."),
		},
		promptFAQServices: {
			session.LangEnglish: def(info.ServicesEN, "We offer chiropractic adjustments, massage therapy, and rehabilitation. We accept all major credit cards, and walk-ins are welcome based on availability."),
			session.LangSpanish: def(info.ServicesES, "Ofrecemos ajustes quiroprácticos, masaje terapéutico y rehabilitación. Aceptamos todas las tarjetas de crédito principales, y recibimos pacientes sin cita según disponibilidad."),
		},
		promptRescheduleIntro: {
			session.LangEnglish: "I'd be happy to help you reschedule. Let me take a few details first.",
			session.LangSpanish: "Con gusto le ayudo a cambiar su cita. Primero necesito algunos datos.",
		},
		promptAskPatientType: {
			session.LangEnglish: "Are you a new patient, or have you visited us before?",
			session.LangSpanish: "¿Es usted un paciente nuevo, o nos ha visitado antes?",
		},
		promptAskName: {
			session.LangEnglish: "May I have your full name, please?",
			session.LangSpanish: "¿Me puede dar su nombre completo, por favor?",
		},
		promptAskPhone: {
			session.LangEnglish: "What's the best phone number to reach you?",
			session.LangSpanish: "¿Cuál es el mejor número de teléfono para contactarle?",
		},
		promptInvalidPhone: {
			session.LangEnglish: "That doesn't sound like a complete phone number. Could you say it again, digit by digit?",
			session.LangSpanish: "Eso no parece un número de teléfono completo. ¿Podría repetirlo, dígito por dígito?",
		},
		promptAskReason: {
			session.LangEnglish: "Thanks, %s. What's the reason for your visit?",
			session.LangSpanish: "Gracias, %s. ¿Cuál es el motivo de su visita?",
		},
		promptOfferSlots: {
			session.LangEnglish: "We have the following appointments available: %s. Would any of these times work for you? You can also press the number of your choice.",
			session.LangSpanish: "Tenemos las siguientes citas disponibles: %s. ¿Le funciona alguno de estos horarios? También puede marcar el número de su preferencia.",
		},
		promptPickSlot: {
			session.LangEnglish: "Which of those times would you like? You can say the day, or press one, two, or three.",
			session.LangSpanish: "¿Cuál de esos horarios prefiere? Puede decir el día, o marcar uno, dos o tres.",
		},
		promptNoSlots: {
			session.LangEnglish: "I'm sorry, I don't see any available appointments in the next few days. Let me connect you with our scheduling team.",
			session.LangSpanish: "Lo siento, no veo citas disponibles en los próximos días. Permítame conectarle con nuestro equipo de programación.",
		},
		promptConfirmed: {
			session.LangEnglish: "You're all set, %s. Your appointment is booked for %s. We'll see you then!",
			session.LangSpanish: "Listo, %s. Su cita quedó reservada para %s. ¡Le esperamos!",
		},
		promptBookingRetry: {
			session.LangEnglish: "I'm sorry, that time is no longer available. Here are the latest openings: %s. Would any of these work?",
			session.LangSpanish: "Lo siento, ese horario ya no está disponible. Estas son las opciones más recientes: %s. ¿Le funciona alguna?",
		},
		promptBookingInvalid: {
			session.LangEnglish: "I'm sorry, something about your details didn't go through. Let's try your phone number again.",
			session.LangSpanish: "Lo siento, hubo un problema con sus datos. Intentemos de nuevo con su número de teléfono.",
		},
	}
	return &Catalog{templates: t}
}

// Render resolves a prompt template for the language and substitutes args.
func (c *Catalog) Render(key promptKey, lang session.Language, args ...any) string {
	byLang, ok := c.templates[key]
	if !ok {
		return ""
	}
	tmpl, ok := byLang[lang]
	if !ok {
		tmpl = byLang[session.LangEnglish]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

var spanishWeekdays = map[time.Weekday]string{
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
	time.Sunday:    "domingo",
}

// slotLabel renders an offered slot for speech in the caller's language.
func slotLabel(s session.TimeSlot, lang session.Language) string {
	if lang == session.LangSpanish {
		return fmt.Sprintf("el %s a las %s", spanishWeekdays[s.Start.Weekday()], s.Start.Format("3:04 PM"))
	}
	if s.Label != "" {
		return s.Label
	}
	return s.Start.Format("Monday at 3:04 PM")
}

// slotList numbers the offered slots for speech: "option one, Monday at 3:00 PM; ...".
func slotList(slots []session.TimeSlot, lang session.Language) string {
	ordinals := map[session.Language][]string{
		session.LangEnglish: {"option one", "option two", "option three"},
		session.LangSpanish: {"opción uno", "opción dos", "opción tres"},
	}
	names := ordinals[lang]
	parts := make([]string, 0, len(slots))
	for i, s := range slots {
		prefix := ""
		if i < len(names) {
			prefix = names[i] + ", "
		}
		parts = append(parts, prefix+slotLabel(s, lang))
	}
	return strings.Join(parts, "; ")
}
