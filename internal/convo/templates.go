package convo

import (
	"fmt"
	"strings"
)

// FallbackReply is sent when the intent resolver is unreachable or returns
// nothing usable. No state is written on that path.
const FallbackReply = "I'm sorry, I couldn't understand that. Please try again."

func platformMenu() string {
	var b strings.Builder
	b.WriteString("Hello Sir 👋\nWelcome to TradeID Trading Desk.\n\n")
	b.WriteString("We provide instant trading accounts on the following platforms:\n\n")
	for i, platform := range Platforms {
		fmt.Fprintf(&b, "%d️⃣ %s\n", i+1, platform)
	}
	b.WriteString("\nPlease reply with the platform number or name on which you want to create your trading ID.")
	return b.String()
}

func platformConfirmed(platform string) string {
	return fmt.Sprintf(`Great choice sir! 👍

You selected %s.

Please send your full name to create your trading account.`, platform)
}

func nameAcknowledged(name, platform string, minDeposit float64) string {
	return fmt.Sprintf(`Thank you, %s 🙏

To create your %s trading account, please recharge your wallet using the UPI QR Code.

💰 Minimum Recharge: ₹%.0f
📲 Payment Method: UPI QR
⚡ Instant Activation

Please scan and pay using the QR code below. After payment, share the transaction screenshot or UTR number.`, name, platform, minDeposit)
}
