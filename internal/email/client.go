// Package email defines the interface for transactional email delivery and
// provides a Resend-backed implementation.
package email

import (
	"context"
	"time"
)

// BookingParams holds the data for the booking confirmation email.
type BookingParams struct {
	To           string // tutor email address
	TutorName    string
	PetName      string
	Date         time.Time
	ReceiptToken string // opaque; the receipt URL carries it, never the appointment ID
}

// AnalysisReadyParams holds the data for the "screening reviewed" email.
type AnalysisReadyParams struct {
	To           string
	TutorName    string
	PetName      string
	RiskFlag     bool
	ReceiptToken string
}

// Sender is the interface the worker and booking handler use to send email.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// SendBookingConfirmation is sent by the booking handler right after the
	// appointment is stored, before the screening is analysed.
	SendBookingConfirmation(ctx context.Context, p BookingParams) error

	// SendAnalysisReady is sent by the worker after the decision is persisted.
	SendAnalysisReady(ctx context.Context, p AnalysisReadyParams) error
}

// Nop drops every email. Used when RESEND_API_KEY is unset.
type Nop struct{}

func (Nop) SendBookingConfirmation(context.Context, BookingParams) error { return nil }
func (Nop) SendAnalysisReady(context.Context, AnalysisReadyParams) error { return nil }
