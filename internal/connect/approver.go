package connect

import (
	"context"
	"errors"
)

// Approver is the platform surface that shows pairing codes and collects
// user input while a connect is pending. Calls may block until the user
// acts or ctx ends.
type Approver interface {
	// PresentQR shows a pairing URI as a QR code or deep link
	PresentQR(ctx context.Context, uri string) error
	// PresentApproval asks the user to approve in their wallet
	PresentApproval(ctx context.Context, provider ProviderID, prompt string) error
	// PromptOTP collects the one-time code sent to email
	PromptOTP(ctx context.Context, email string) (string, error)
	// Dismiss removes whatever is being presented
	Dismiss()
}

// ErrNoApprover is returned by NoopApprover when input is required
var ErrNoApprover = errors.New("no approver configured for user input")

// NoopApprover presents nothing and cannot answer prompts
type NoopApprover struct{}

func (NoopApprover) PresentQR(context.Context, string) error                   { return nil }
func (NoopApprover) PresentApproval(context.Context, ProviderID, string) error { return nil }
func (NoopApprover) PromptOTP(context.Context, string) (string, error)         { return "", ErrNoApprover }
func (NoopApprover) Dismiss()                                                  {}
