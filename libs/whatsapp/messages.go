package whatsapp

import "strings"

// Details are the appointment fields the messages mention.
type Details struct {
	StudioName    string
	StudioAddress string
	ClientName    string
	ServiceName   string
	Date          string // YYYY-MM-DD
	Time          string // HH:MM
}

const separator = "━━━━━━━━━━━━━━━━━━"

func (d Details) serviceName() string {
	if d.ServiceName == "" {
		return "Procedimento"
	}
	return d.ServiceName
}

func (d Details) studioName() string {
	if d.StudioName == "" {
		return "Cílios de Luxo"
	}
	return d.StudioName
}

// BookingRequestMessage is sent by the client to the studio right after booking.
func BookingRequestMessage(d Details) string {
	return strings.Join([]string{
		"✨ *Olá, " + d.ClientName + "!* ✨",
		"",
		"Sua solicitação de agendamento no *" + d.studioName() + "* foi enviada! 💅",
		"",
		"📋 *Detalhes da Reserva:*",
		separator,
		"• *Procedimento:* " + d.serviceName(),
		"• *Data:* " + FormatDateBR(d.Date),
		"• *Horário:* " + d.Time,
		separator,
		"",
		"✅ Por favor, responda com *\"CONFIRMAR\"* para validar seu horário.",
		"",
		"Aguardamos você! 💖",
		"",
		"_Att., Equipe " + d.studioName() + "_",
	}, "\n")
}

// ReminderMessage is sent by the studio to the client ahead of the appointment.
func ReminderMessage(d Details) string {
	return strings.Join([]string{
		"✨ *Lembrete: Seu Momento de Luxo está chegando!* ✨",
		"",
		"Olá, *" + d.ClientName + "*! Tudo bem?",
		"",
		"Passando para confirmar seu agendamento de *" + d.serviceName() + "* conosco:",
		"",
		"📅 *Data:* " + FormatDateBR(d.Date),
		"⏰ *Horário:* " + d.Time,
		"📍 *Local:* " + d.StudioAddress,
		"",
		"Estamos ansiosos para te proporcionar uma experiência incrível!",
		"",
		"_Att., Equipe " + d.studioName() + "_",
	}, "\n")
}

// ConfirmationMessage is sent by the studio once the booking is accepted.
func ConfirmationMessage(d Details) string {
	return "✅ *Confirmação " + d.studioName() + "* ✅\n\n" +
		"Olá " + d.ClientName + ", seu agendamento de *" + d.serviceName() + "* para o dia " +
		FormatDateBR(d.Date) + " às " + d.Time + " foi confirmado com sucesso!\n\nAté logo! ✨"
}

// NewBookingAlert tells the studio about a booking made on the public page.
func NewBookingAlert(d Details, clientWhatsapp string) string {
	return strings.Join([]string{
		"📥 *Novo agendamento*",
		separator,
		"• *Cliente:* " + d.ClientName,
		"• *WhatsApp:* " + clientWhatsapp,
		"• *Procedimento:* " + d.serviceName(),
		"• *Data:* " + FormatDateBR(d.Date),
		"• *Horário:* " + d.Time,
	}, "\n")
}
