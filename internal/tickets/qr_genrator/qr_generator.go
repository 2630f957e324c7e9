package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-raffle/internal/models"
)

// Receipt is what a scanned ticket QR decrypts to
type Receipt struct {
	TicketID   string             `json:"ticket_id"`
	EventID    string             `json:"event_id"`
	ClientName string             `json:"client_name"`
	Rows       []models.TicketRow `json:"rows"`
	Amount     float64            `json:"amount"`
	Vendor     string             `json:"vendor_email,omitempty"`
	IssuedAt   time.Time          `json:"issued_at"`
}

func NewReceipt(ticket *models.Ticket) Receipt {
	return Receipt{
		TicketID:   ticket.ID,
		EventID:    ticket.EventID,
		ClientName: ticket.ClientName,
		Rows:       ticket.Rows,
		Amount:     ticket.Amount,
		Vendor:     ticket.VendorEmail,
		IssuedAt:   time.Now().UTC(),
	}
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateReceiptQR returns a PNG whose content is the encrypted receipt
func (q *QRGenerator) GenerateReceiptQR(receipt Receipt, size int) ([]byte, error) {
	encrypted, err := q.Encrypt(receipt)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(encrypted, qrcode.Medium, size)
}

// Encrypt seals the receipt as URL-safe base64 AES-CFB ciphertext
func (q *QRGenerator) Encrypt(receipt Receipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A payload sealed with another secret fails to decode.
func (q *QRGenerator) Decrypt(payload string) (*Receipt, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode qr payload: %w", err)
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("qr payload too short")
	}

	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	iv := ciphertext[:aes.BlockSize]
	data := ciphertext[aes.BlockSize:]
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(data, data)

	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("qr payload is not a receipt: %w", err)
	}
	return &receipt, nil
}
