package mail

import "fmt"

// VerificationEmail builds the email-confirmation message. The link stays
// valid for 24 hours; the token store enforces single use.
func VerificationEmail(to, verifyURL, appOrigin string) Message {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Confirm your email address</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f9f9f9; border-radius: 8px; padding: 30px;">
    <h1 style="color: #2563eb; font-size: 24px; text-align: center;">Confirm your email address</h1>
    <p>Thanks for signing up for Lawmakers App.</p>
    <p>Click the link below to finish creating your account:</p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="%[1]s" style="display: inline-block; background-color: #2563eb; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px; font-weight: bold;">Confirm email</a>
    </div>
    <p style="font-size: 14px; color: #666;">If the button does not work, copy this URL into your browser:</p>
    <p style="font-size: 14px; color: #666; word-break: break-all; background-color: #eee; padding: 10px; border-radius: 4px;">%[1]s</p>
    <hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">
    <p style="font-size: 14px; color: #666;"><strong>Note:</strong> this link expires in <strong>24 hours</strong>.</p>
    <p style="font-size: 14px; color: #666;">If you did not request this, you can ignore this email.</p>
  </div>
  <div style="text-align: center; margin-top: 20px; padding-top: 20px; border-top: 1px solid #ddd;">
    <p style="font-size: 12px; color: #999;">&copy; Lawmakers App<br><a href="%[2]s" style="color: #666;">%[2]s</a></p>
  </div>
</body>
</html>`, verifyURL, appOrigin)

	text := fmt.Sprintf(`Confirm your email address

Thanks for signing up for Lawmakers App.

Click the link below to finish creating your account:

%s

This link expires in 24 hours.
If you did not request this, you can ignore this email.

---
(c) Lawmakers App
%s`, verifyURL, appOrigin)

	return Message{
		To:      to,
		Subject: "Lawmakers App: confirm your email address",
		HTML:    html,
		Text:    text,
	}
}
