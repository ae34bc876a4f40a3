// Package fulfillment renders packing-slip artifacts for shipped orders.
package fulfillment

import (
	"encoding/json"

	"github.com/skip2/go-qrcode"

	"ms-blindbox/internal/models"
)

type slipPayload struct {
	OrderID       string `json:"order_id"`
	CustomerName  string `json:"customer_name"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	TotalAmount   int64  `json:"total_amount"`
}

// PackingSlipQR encodes the shipping snapshot as a QR PNG for the
// warehouse scanner.
func PackingSlipQR(order *models.Order) ([]byte, error) {
	data, err := json.Marshal(slipPayload{
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		StreetAddress: order.StreetAddress,
		City:          order.City,
		State:         order.State,
		ZipCode:       order.ZipCode,
		TotalAmount:   order.TotalAmount,
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(data), qrcode.Medium, 256)
}
