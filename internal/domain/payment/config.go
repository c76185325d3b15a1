package payment

// Config describes how to read a payment provider's callbacks.
type Config struct {
	// Secret is the shared token the provider sends with every callback.
	// An empty secret disables authentication.
	Secret string

	ResponseCodeField   string
	SuccessCode         string
	CorrelationFields   []string
	TransactionIDFields []string
	CardBrandFields     []string
	Last4Fields         []string
	MethodFields        []string
	// RedactFields are dropped before the payload is stored.
	RedactFields []string
}

// DefaultConfig returns field names used by the Tranzila-style callback.
func DefaultConfig() Config {
	return Config{
		ResponseCodeField:   "Response",
		SuccessCode:         "000",
		CorrelationFields:   []string{"clientOrderId", "client_order_id", "orderId"},
		TransactionIDFields: []string{"transactionId", "index", "ConfirmationCode"},
		CardBrandFields:     []string{"cardBrand", "brand", "cardtype"},
		Last4Fields:         []string{"last4", "ccno"},
		MethodFields:        []string{"paymentMethod", "method"},
		RedactFields:        []string{"cvv", "mycvv", "expdate", "expmonth", "expyear"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ResponseCodeField == "" {
		c.ResponseCodeField = d.ResponseCodeField
	}
	if c.SuccessCode == "" {
		c.SuccessCode = d.SuccessCode
	}
	if len(c.CorrelationFields) == 0 {
		c.CorrelationFields = d.CorrelationFields
	}
	if len(c.TransactionIDFields) == 0 {
		c.TransactionIDFields = d.TransactionIDFields
	}
	if len(c.CardBrandFields) == 0 {
		c.CardBrandFields = d.CardBrandFields
	}
	if len(c.Last4Fields) == 0 {
		c.Last4Fields = d.Last4Fields
	}
	if len(c.MethodFields) == 0 {
		c.MethodFields = d.MethodFields
	}
	if c.RedactFields == nil {
		c.RedactFields = d.RedactFields
	}
	return c
}
