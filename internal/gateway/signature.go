package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// Sign 计算 body 的 HMAC-SHA512 十六进制签名
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature never errors: any missing input yields false.
func VerifySignature(secret string, rawBody []byte, signature string) bool {
	if secret == "" || signature == "" || len(rawBody) == 0 {
		return false
	}
	expected := Sign(secret, rawBody)
	return hmac.Equal([]byte(expected), []byte(signature))
}
