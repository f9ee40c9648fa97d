package denylist

// DefaultPatterns returns the built-in patterns used when no configuration is
// available. URL and command entries are case-insensitive regexes; file
// entries are exact paths or globs.
func DefaultPatterns() Patterns {
	return Patterns{
		URLs: []string{
			// E-commerce checkout
			"/checkout",
			"/payment",
			"/billing",
			"/subscribe",
			"/cart/confirm",
			"/order/place",
			// Payment providers
			`stripe\.com/v1/charges`,
			`stripe\.com/v1/payment_intents`,
			`checkout\.stripe\.com`,
			`buy\.stripe\.com`,
			`paypal\.com/checkoutnow`,
			`paddle\.com/checkout`,
		},
		Files: []string{
			// SSH keys
			"~/.ssh/id_rsa",
			"~/.ssh/id_ed25519",
			"**/id_rsa",
			"**/id_ed25519",
			// Cloud credentials
			"~/.aws/credentials",
			"~/.aws/config",
			"~/.config/gcloud/credentials.db",
			"~/.azure/credentials",
			// API keys
			"**/secrets.json",
			"**/.env",
			"**/credentials.json",
			// Password managers
			"~/.password-store",
			"**/*.kdbx",
		},
		Commands: []string{
			// Destructive
			`rm\s+-rf\s+/(\s|$)`,
			`rm\s+-rf\s+~`,
			`dd\s+if=/dev/zero`,
			`\bmkfs(\.\w+)?\b`,
			`\bfdisk\b`,
			// Privilege escalation
			`sudo\s+su\b`,
			`sudo\s+-i\b`,
			// Data exfiltration
			`curl[^|]*\|\s*(ba|z)?sh\b`,
			`wget[^|]*\|\s*(ba|z)?sh\b`,
		},
	}
}
