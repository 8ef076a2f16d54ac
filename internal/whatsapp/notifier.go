package whatsapp

import (
	"context"
	"fmt"
)

// PhoneNotifier delivers notifications to one fixed phone number.
type PhoneNotifier struct {
	client *Client
	phone  string
}

func NewPhoneNotifier(c *Client, phone string) *PhoneNotifier {
	return &PhoneNotifier{client: c, phone: phone}
}

func (n *PhoneNotifier) Notify(ctx context.Context, text string) error {
	res, err := n.client.SendText(ctx, n.phone, text)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("whatsapp notify: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
