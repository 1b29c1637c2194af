package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// resendClient is the concrete Sender backed by the Resend API.
type resendClient struct {
	apiKey     string
	fromAddr   string // e.g. "agendamento@sepet.am.gov.br"
	fromName   string // e.g. "SEPET"
	baseURL    string // receipt URL base, e.g. "https://sepet.am.gov.br"
	contact    Contact
	endpoint   string
	httpClient *http.Client
}

// Contact is the service footer printed on every email.
type Contact struct {
	Address string
	Email   string
	Phone   string
}

// NewResendClient returns a Sender that delivers email via Resend.
func NewResendClient(apiKey, fromAddr, fromName, baseURL string, contact Contact) Sender {
	return newResendClient(apiKey, fromAddr, fromName, baseURL, contact, resendEndpoint)
}

func newResendClient(apiKey, fromAddr, fromName, baseURL string, contact Contact, endpoint string) *resendClient {
	return &resendClient{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		baseURL:  strings.TrimRight(baseURL, "/"),
		contact:  contact,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

// ─── SENDER IMPLEMENTATION ────────────────────────────────────────────────────

// SendBookingConfirmation sends the appointment confirmation with the
// receipt link.
func (c *resendClient) SendBookingConfirmation(ctx context.Context, p BookingParams) error {
	subject := "SEPET: appointment confirmed"
	if p.PetName != "" {
		subject = fmt.Sprintf("SEPET: appointment confirmed for %s", p.PetName)
	}
	body := bookingHTML(p, ReceiptURL(c.baseURL, p.ReceiptToken), c.contact)
	return c.send(ctx, p.To, subject, body)
}

// SendAnalysisReady tells the tutor the screening has been reviewed. The
// opinion itself is only shown on the receipt page.
func (c *resendClient) SendAnalysisReady(ctx context.Context, p AnalysisReadyParams) error {
	subject := "SEPET: screening reviewed"
	if p.PetName != "" {
		subject = fmt.Sprintf("SEPET: screening reviewed for %s", p.PetName)
	}
	body := analysisReadyHTML(p, ReceiptURL(c.baseURL, p.ReceiptToken), c.contact)
	return c.send(ctx, p.To, subject, body)
}

// ReceiptURL is the public receipt link for a receipt token.
func ReceiptURL(baseURL, token string) string {
	return fmt.Sprintf("%s/api/receipts/%s", strings.TrimRight(baseURL, "/"), token)
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

func (c *resendClient) send(ctx context.Context, to, subject, body string) error {
	reqBody := resendRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromAddr),
		To:      []string{to},
		Subject: subject,
		HTML:    body,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("email: read response: %w", err)
	}

	var parsed resendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return fmt.Errorf("email: unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return fmt.Errorf("email: Resend error %s: %s", parsed.Error.Name, parsed.Error.Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	return nil
}

// ─── HTML TEMPLATES ───────────────────────────────────────────────────────────

func greeting(tutor string) string {
	if tutor == "" {
		return "Hello"
	}
	return "Hello " + html.EscapeString(tutor)
}

func footerHTML(c Contact) string {
	return fmt.Sprintf(`<hr style="border: none; border-top: 1px solid #e5e7eb; margin: 32px 0;">
  <p style="color: #9ca3af; font-size: 12px;">
    SEPET · Pet Sterilisation Service<br>
    %s · %s<br>
    %s
  </p>`, html.EscapeString(c.Email), html.EscapeString(c.Phone), html.EscapeString(c.Address))
}

func buttonHTML(url, label string) string {
	return fmt.Sprintf(`<p style="margin: 32px 0;">
    <a href="%s"
       style="background: #0d9488; color: #ffffff; padding: 12px 24px;
              border-radius: 6px; text-decoration: none; font-weight: 600;">
      %s
    </a>
  </p>`, url, label)
}

func bookingHTML(p BookingParams, receiptURL string, c Contact) string {
	date := "to be confirmed"
	if !p.Date.IsZero() {
		date = p.Date.Format("02/01/2006")
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-bottom: 8px;">Appointment Confirmed</h2>
  <p>%s,</p>
  <p>The sterilisation appointment for <strong>%s</strong> is booked for
  <strong>%s</strong>. Our team will review the clinical screening before the day.</p>
  <p>Remember: the animal must fast for 12 hours before the procedure.</p>
  %s
  %s
</body>
</html>`, greeting(p.TutorName), html.EscapeString(p.PetName), date,
		buttonHTML(receiptURL, "View Receipt"), footerHTML(c))
}

func analysisReadyHTML(p AnalysisReadyParams, receiptURL string, c Contact) string {
	note := "No significant risk was identified in the screening."
	if p.RiskFlag {
		note = "Risk factors were identified in the screening. Please read the opinion on the receipt and contact us before the appointment."
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-bottom: 8px;">Screening Reviewed</h2>
  <p>%s,</p>
  <p>The clinical screening for <strong>%s</strong> has been reviewed.</p>
  <p>%s</p>
  %s
  %s
</body>
</html>`, greeting(p.TutorName), html.EscapeString(p.PetName), note,
		buttonHTML(receiptURL, "View Receipt"), footerHTML(c))
}
