package payments

import (
	"fmt"
	"time"

	"tradeid-bot/internal/repo"
)

// istLocation renders payment times in the operator's timezone.
var istLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// adminNotification summarises the payment for the operator and asks for
// credential creation. The string is handed to the external message
// transport, never sent from here.
func adminNotification(client *repo.Client, n Notification) string {
	txn := n.UPITransactionID
	if txn == "" {
		txn = "N/A"
	}
	name := "Unknown"
	if client.ClientName != nil && *client.ClientName != "" {
		name = *client.ClientName
	}
	platform := "Unknown"
	if client.SelectedPlatform != nil && *client.SelectedPlatform != "" {
		platform = *client.SelectedPlatform
	}
	return fmt.Sprintf(`⚡ NEW PAYMENT RECEIVED ⚡

Client Name: %s
Platform: %s
Amount Paid: ₹%.0f
Txn ID: %s
Time: %s

Please create the trading account and send credentials to the client.`,
		name, platform, n.Amount, txn, time.Now().In(istLocation).Format("02/01/2006, 3:04:05 pm"))
}

// clientNotification acknowledges receipt to the client.
func clientNotification(client *repo.Client, n Notification) string {
	return fmt.Sprintf(`Thank you, %s 🙏

Your payment of ₹%.0f has been successfully received.

Our team is now creating your %s account.
You will receive your login ID and password shortly.`,
		client.Name(), n.Amount, client.Platform())
}
