package intake

// User-facing texts that are not part of a flow definition.
const (
	closingIdle = "Suas informações já foram registradas e nossa equipe entrará em contato em breve. Se quiser, pode enviar uma nova mensagem para iniciar outro atendimento."

	// ClosingWithConfirmation ends a completed flow when a WhatsApp confirmation was queued.
	ClosingWithConfirmation = "Perfeito! Suas informações foram registradas e um de nossos advogados entrará em contato em breve. Você também receberá uma confirmação no seu WhatsApp."
	// ClosingGeneric ends a completed flow when no confirmation message applies.
	ClosingGeneric = "Obrigado pelas informações! Nossa equipe entrará em contato em breve."
	// ClosingAlreadyQueued is used when the lead had already been handed to the team.
	ClosingAlreadyQueued = "Obrigado! Suas informações já estão com a nossa equipe, que entrará em contato em breve."

	// RateLimited answers a session sending messages too fast.
	RateLimited = "Você está enviando mensagens muito rápido. Aguarde um momento e tente novamente."
	// Busy answers when the session is locked by another request for too long.
	Busy = "Ainda estou processando sua mensagem anterior. Por favor, tente novamente em instantes."
	// FallbackGreeting is used when even the greeting could not be produced.
	FallbackGreeting = "Olá! Como posso ajudá-lo hoje?"
)

var recoveryMessages = []string{
	"Desculpe, tive um problema ao processar sua mensagem.",
	"Desculpe novamente pelo transtorno, estou com dificuldades técnicas.",
	"Peço desculpas pela instabilidade. Vamos continuar de onde paramos.",
}

// RecoveryMessage returns the apology for the n-th consecutive failure
// (1-based) followed by the question to resume with.
func RecoveryMessage(n int, question string) string {
	if n < 1 {
		n = 1
	}
	if n > len(recoveryMessages) {
		n = len(recoveryMessages)
	}
	msg := recoveryMessages[n-1]
	if question == "" {
		return msg + " Pode repetir, por favor?"
	}
	return msg + " " + question
}
