package notify

import (
	"fmt"
	"html"
	"strings"
)

const defaultAppName = "licsrv"

// Compose renders the subject, plain text and HTML bodies of msg.
func Compose(cfg Config, msg Message) (subject, text, htmlBody string, err error) {
	app := cfg.AppName
	if app == "" {
		app = defaultAppName
	}
	name := msg.CustomerName
	if name == "" {
		name = "Customer"
	}

	switch msg.Kind {
	case KindLicenseDelivery:
		subject = fmt.Sprintf("Your %s License", app)
		text = fmt.Sprintf(`Hello %s,

Thank you for purchasing %s!

Here is your license key:
%s
%s
Instructions:
1. Open %s
2. Enter your email: %s
3. Enter the license key above
4. Click Login

If you have any questions, please reply to this email.

Best regards,
The %s Team
`, name, app, msg.LicenseKey, expiresLine(msg), app, msg.Recipient, app)

	case KindTrialActivation:
		subject = fmt.Sprintf("Your %s Free Trial is Ready!", app)
		var purchase string
		if cfg.PurchaseURL != "" {
			purchase = fmt.Sprintf("\nIf you enjoy %s, purchase a full license at:\n%s\n", app, cfg.PurchaseURL)
		}
		text = fmt.Sprintf(`Hello,

Your free trial of %s has been activated.

Here is your trial license key:
%s
%s
How to use your trial:
1. Open %s
2. Enter your email: %s
3. Enter the license key above
4. Click Login
%s
Questions? Reply to this email!

Best regards,
The %s Team
`, app, msg.LicenseKey, expiresLine(msg), app, msg.Recipient, purchase, app)

	case KindLicenseRecovery:
		subject = fmt.Sprintf("Your %s License Key - Recovered", app)
		text = fmt.Sprintf(`Hello,

We received your request to recover your %s license key.

Your license key is:
%s

How to activate:
1. Open %s
2. Click "Login"
3. Enter your email: %s
4. Paste the license key above
5. Click "Login"

If you did not request this email you can ignore it.

Best regards,
The %s Team
`, app, msg.LicenseKey, app, msg.Recipient, app)

	default:
		return "", "", "", fmt.Errorf("unknown message kind %q", msg.Kind)
	}

	return subject, text, renderHTML(subject, text), nil
}

func expiresLine(msg Message) string {
	if msg.Expires.IsZero() {
		return ""
	}
	return fmt.Sprintf("\nValid until: %s (UTC)\n", msg.Expires.UTC().Format("2006-01-02 15:04"))
}

// renderHTML escapes the plain body and wraps it in a minimal layout.
func renderHTML(subject, body string) string {
	safeSubject := html.EscapeString(subject)
	htmlBody := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <title>%s</title>
</head>
<body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6;">
  <h2>%s</h2>
  <div>%s</div>
</body>
</html>`, safeSubject, safeSubject, htmlBody)
}
