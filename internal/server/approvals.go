package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yolodolo42/walletkit/internal/connect"
)

// Approval kinds
const (
	ApprovalQR      = "qr"
	ApprovalConfirm = "approval"
	ApprovalOTP     = "otp"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	ErrNotAnswerable    = errors.New("approval does not take an answer")
	ErrApprovalRejected = errors.New("approval rejected by user")
)

// Approval is a pending request for the host to show or answer
type Approval struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Provider  connect.ProviderID `json:"provider,omitempty"`
	URI       string             `json:"uri,omitempty"`
	Prompt    string             `json:"prompt,omitempty"`
	Email     string             `json:"email,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`

	answer chan answer
}

type answer struct {
	code   string
	reject bool
}

// Approvals is a polled queue that lets a host without a terminal act as
// the connect.Approver. PresentQR and PresentApproval enqueue and return;
// PromptOTP blocks until Answer, Reject or ctx ends.
type Approvals struct {
	mu      sync.Mutex
	pending map[string]*Approval
}

var _ connect.Approver = (*Approvals)(nil)

func NewApprovals() *Approvals {
	return &Approvals{pending: make(map[string]*Approval)}
}

func (q *Approvals) add(a *Approval) *Approval {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	q.mu.Lock()
	q.pending[a.ID] = a
	q.mu.Unlock()
	return a
}

func (q *Approvals) remove(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

func (q *Approvals) PresentQR(_ context.Context, uri string) error {
	q.add(&Approval{Kind: ApprovalQR, URI: uri})
	return nil
}

func (q *Approvals) PresentApproval(_ context.Context, provider connect.ProviderID, prompt string) error {
	q.add(&Approval{Kind: ApprovalConfirm, Provider: provider, Prompt: prompt})
	return nil
}

func (q *Approvals) PromptOTP(ctx context.Context, email string) (string, error) {
	a := q.add(&Approval{Kind: ApprovalOTP, Provider: connect.ProviderMagic, Email: email, answer: make(chan answer, 1)})
	defer q.remove(a.ID)

	select {
	case ans := <-a.answer:
		if ans.reject {
			return "", ErrApprovalRejected
		}
		return ans.code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Dismiss drops everything that is only being shown
func (q *Approvals) Dismiss() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, a := range q.pending {
		if a.answer == nil {
			delete(q.pending, id)
		}
	}
}

// List returns the pending approvals, oldest first
func (q *Approvals) List() []Approval {
	q.mu.Lock()
	out := make([]Approval, 0, len(q.pending))
	for _, a := range q.pending {
		out = append(out, *a)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Answer delivers an OTP code to a pending prompt
func (q *Approvals) Answer(id, code string) error {
	return q.deliver(id, answer{code: code})
}

// Reject fails a pending prompt as a user rejection
func (q *Approvals) Reject(id string) error {
	return q.deliver(id, answer{reject: true})
}

func (q *Approvals) deliver(id string, ans answer) error {
	q.mu.Lock()
	a, ok := q.pending[id]
	if ok && a.answer != nil {
		delete(q.pending, id)
	}
	q.mu.Unlock()

	switch {
	case !ok:
		return ErrApprovalNotFound
	case a.answer == nil:
		return ErrNotAnswerable
	}
	a.answer <- ans
	return nil
}
