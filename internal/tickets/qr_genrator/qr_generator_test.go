package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/models"
)

func sampleTicket() *models.Ticket {
	return &models.Ticket{
		ID:          "t1",
		EventID:     "event-1",
		ClientName:  "Ana",
		Rows:        []models.TicketRow{{Number: "07", Quantity: 3}},
		Amount:      0.6,
		VendorEmail: "v@example.com",
	}
}

func TestEncryptDecryptReceipt(t *testing.T) {
	q := NewQRGenerator("secret")

	payload, err := q.Encrypt(NewReceipt(sampleTicket()))
	require.NoError(t, err)

	receipt, err := q.Decrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, "t1", receipt.TicketID)
	assert.Equal(t, "event-1", receipt.EventID)
	assert.Equal(t, 3, receipt.Rows[0].Quantity)
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	payload, err := NewQRGenerator("secret").Encrypt(NewReceipt(sampleTicket()))
	require.NoError(t, err)

	_, err = NewQRGenerator("other").Decrypt(payload)
	assert.Error(t, err)

	_, err = NewQRGenerator("secret").Decrypt("short")
	assert.Error(t, err)
}

func TestGenerateReceiptQRIsPNG(t *testing.T) {
	img, err := NewQRGenerator("secret").GenerateReceiptQR(NewReceipt(sampleTicket()), 0)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}
