package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature вычисляет HMAC-SHA256 подпись тела вебхука в hex.
func Signature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сверяет подпись из заголовка с вычисленной по телу.
// Сравнение константное по времени.
func VerifySignature(secret, body []byte, provided string) bool {
	if len(secret) == 0 || provided == "" {
		return false
	}
	expected, err := hex.DecodeString(Signature(secret, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
