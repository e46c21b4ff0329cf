package middleware

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
)

// DefaultPaymentHeader carries x402 payment proof from the caller.
const DefaultPaymentHeader = "X-Payment"

// Payment is the metadata extracted from a payment header.
type Payment struct {
	Amount *float64
	TxHash *string
	Token  *string
	Payer  *string
}

type paymentHeader struct {
	Amount json.RawMessage `json:"amount"`
	TxHash string          `json:"tx_hash"`
	Token  string          `json:"token"`
	Payer  string          `json:"payer"`
}

// ParsePayment decodes a payment header value: a JSON object, or the same
// object base64-encoded. Anything that does not decode yields ok=false and an
// empty Payment. Zero and empty values are left unset.
func ParsePayment(raw string) (p Payment, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payment{}, false
	}

	data := []byte(raw)
	if raw[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Payment{}, false
		}
		data = decoded
	}

	var h paymentHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return Payment{}, false
	}

	amount, err := parseAmount(h.Amount)
	if err != nil {
		return Payment{}, false
	}
	if amount > 0 {
		p.Amount = &amount
	}
	p.TxHash = telemetry.String(h.TxHash)
	p.Token = telemetry.String(h.Token)
	p.Payer = telemetry.String(h.Payer)
	return p, true
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return f, nil
}
