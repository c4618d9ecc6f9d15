package ui

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/pkg/browser"

	"github.com/yolodolo42/walletkit/internal/connect"
)

// openURL is swapped in tests
var openURL = browser.OpenURL

// TerminalApprover presents pairing links and prompts on a terminal
type TerminalApprover struct {
	in  io.Reader
	out io.Writer

	// OpenBrowser opens http(s) pairing links in the default browser
	OpenBrowser bool

	mu      sync.Mutex
	showing bool
}

var _ connect.Approver = (*TerminalApprover)(nil)

// NewTerminalApprover returns an approver reading from in and writing to out
func NewTerminalApprover(in io.Reader, out io.Writer) *TerminalApprover {
	return &TerminalApprover{in: in, out: out, OpenBrowser: true}
}

func (a *TerminalApprover) PresentQR(_ context.Context, uri string) error {
	a.setShowing(true)

	body := TitleStyle.Render("Pair your wallet") + "\n" +
		HelpStyle.Render("Open this link in your wallet app or paste it into its scanner:") + "\n\n" +
		AddressStyle.Render(uri)
	fmt.Fprintln(a.out, PairingBox.Render(body))

	if a.OpenBrowser && isWebLink(uri) {
		if err := openURL(uri); err != nil {
			fmt.Fprintln(a.out, WarningStyle.Render("Could not open browser automatically. Please visit the link above."))
		}
	}
	fmt.Fprintln(a.out, HelpStyle.Render(SymbolWait+" Waiting for approval..."))
	return nil
}

func (a *TerminalApprover) PresentApproval(_ context.Context, provider connect.ProviderID, prompt string) error {
	a.setShowing(true)
	fmt.Fprintf(a.out, "%s %s\n", TitleStyle.Render(provider.DisplayName()), prompt)
	fmt.Fprintln(a.out, HelpStyle.Render(SymbolWait+" Waiting for approval..."))
	return nil
}

func (a *TerminalApprover) PromptOTP(ctx context.Context, email string) (string, error) {
	a.setShowing(true)
	return Ask(ctx, a.in, a.out, fmt.Sprintf("Enter the code sent to %s", email), false)
}

// Dismiss clears the waiting line once, however many times it is called
func (a *TerminalApprover) Dismiss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.showing {
		return
	}
	a.showing = false
	fmt.Fprintln(a.out, HelpStyle.Render("Pairing closed."))
}

func (a *TerminalApprover) setShowing(v bool) {
	a.mu.Lock()
	a.showing = v
	a.mu.Unlock()
}

func isWebLink(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
