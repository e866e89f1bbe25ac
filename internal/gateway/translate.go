package gateway

// Localized user-facing messages, pt-PT. The visitor-facing site is
// Portuguese; gateway messages arrive in English and must never be shown
// verbatim for categories we recognize.
var messagesByCategory = map[Category]string{
	CategoryCardDeclined:      "O seu cartão foi recusado. Tente outro cartão ou contacte o seu banco.",
	CategoryInsufficientFunds: "O cartão não tem fundos suficientes para concluir a compra.",
	CategoryExpiredCard:       "O cartão indicado está expirado. Verifique a data de validade.",
	CategoryInvalidNumber:     "O número do cartão não é válido. Confirme os dígitos e tente novamente.",
	CategoryInvalidCVC:        "O código de segurança (CVC) não é válido.",
	CategoryProcessingError:   "Ocorreu um erro ao processar o pagamento. Tente novamente dentro de momentos.",
	CategoryAuthRequired:      "O seu banco requer autenticação adicional para esta compra.",
}

// Translate maps a classified gateway failure to localized user-facing text.
// Unknown categories pass the original gateway message through unchanged.
func Translate(failure *Failure) string {
	if failure == nil {
		return ""
	}
	if msg, ok := messagesByCategory[failure.Category]; ok {
		return msg
	}
	return failure.RawMessage
}
