package imagepkg

import (
	qrcode "github.com/skip2/go-qrcode"
)

// qrScheme marks references that are rendered locally as QR codes,
// e.g. "qr:https://example.com/campaign".
const qrScheme = "qr:"

const qrSize = 256

// GenerateQRPNG returns PNG bytes of a QR code for the given text.
func GenerateQRPNG(text string, size int) ([]byte, error) {
	return qrcode.Encode(text, qrcode.Medium, size)
}
