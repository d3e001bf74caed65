package dispatch

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"ms-fulfillment/internal/models"

	"github.com/skip2/go-qrcode"
)

// QRGenerator produces the scannable code embedded in ticket artifacts.
// The payload is the order's scan claim encrypted with AES-CFB so a door
// scanner app holding the shared secret can decode it offline, but a
// photographed code leaks nothing.
type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

type qrPayload struct {
	Reference string `json:"reference"`
	EventID   string `json:"eventId"`
	Email     string `json:"email"`
}

func (q *QRGenerator) GenerateEncryptedQR(order *models.Order) ([]byte, error) {
	data, err := json.Marshal(qrPayload{
		Reference: order.Reference,
		EventID:   order.EventID,
		Email:     order.Contact.Email,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, q.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecryptPayload is the scanner-side inverse of GenerateEncryptedQR.
func (q *QRGenerator) DecryptPayload(encoded string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aes.BlockSize {
		return "", io.ErrUnexpectedEOF
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	var payload qrPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	return payload.Reference, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
