package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/razorpay/razorpay-go/utils"
)

// PaymentSignature is hex(HMAC-SHA256(secret, orderRef + "|" + paymentRef)),
// the value the gateway hands the buyer after a successful payment.
func PaymentSignature(secret, orderRef, paymentRef string) string {
	return sign(secret, []byte(orderRef+"|"+paymentRef))
}

// VerifyPayment checks a checkout signature against the order and payment refs.
func VerifyPayment(secret, orderRef, paymentRef, signature string) bool {
	signature = normalize(signature)
	if signature == "" || secret == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderRef,
		"razorpay_payment_id": paymentRef,
	}, signature, secret)
}

// WebhookSignature signs the raw webhook body.
func WebhookSignature(secret string, body []byte) string {
	return sign(secret, body)
}

// VerifyWebhook checks a webhook signature header against the raw body.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	signature = normalize(signature)
	if signature == "" || secret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, secret)
}

// sign mirrors the gateway's own signing; the SDK only verifies.
func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalize(signature string) string {
	return strings.ToLower(strings.TrimSpace(signature))
}
