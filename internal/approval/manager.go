package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aigent/aigent/internal/logger"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("approval not found")
	ErrAlreadyResolved = errors.New("approval already resolved")
	ErrApprovalTimeout = errors.New("approval timed out")
	ErrApprovalRejected = errors.New("approval rejected")
)

// Result is the outcome delivered to whatever goroutine is blocked in Wait.
type Result struct {
	Approved bool
}

// Request is a single pending approval: one tool invocation awaiting a
// human accept/reject decision (spec §4.9 step 4: "publish an
// ApprovalRequest event; block until the approval channel responds with
// accept/reject").
type Request struct {
	ID          string
	ToolName    string
	ToolArgs    string
	Description string
	CreatedAt   time.Time

	resultCh chan Result
	resolved bool
}

// Manager tracks pending approvals for the single local user. Unlike a
// multi-tenant bot, there is no requester identity to check on Resolve —
// any caller with the approval ID (surfaced over the daemon socket's
// ApprovalRequest broadcast) may resolve it.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Request
	timeout time.Duration
}

// NewManager builds a Manager whose Wait calls time out after timeout.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		pending: make(map[string]*Request),
		timeout: timeout,
	}
}

// Start registers a new pending approval and returns its ID.
func (m *Manager) Start(toolName, toolArgs, description string) string {
	id := uuid.New().String()[:8]

	req := &Request{
		ID:          id,
		ToolName:    toolName,
		ToolArgs:    toolArgs,
		Description: description,
		CreatedAt:   time.Now(),
		resultCh:    make(chan Result, 1),
	}

	m.mu.Lock()
	m.pending[id] = req
	m.mu.Unlock()

	logger.Info("approval started", "id", id, "tool", toolName)
	return id
}

// Wait blocks until the approval is resolved, the timeout elapses, or ctx
// is canceled, removing the pending entry in every case.
func (m *Manager) Wait(ctx context.Context, approvalID string) (bool, error) {
	m.mu.Lock()
	req, ok := m.pending[approvalID]
	m.mu.Unlock()
	if !ok {
		return false, ErrNotFound
	}

	defer func() {
		m.mu.Lock()
		delete(m.pending, approvalID)
		m.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(m.timeout):
		logger.Info("approval timed out", "id", approvalID)
		return false, fmt.Errorf("%w after %s", ErrApprovalTimeout, m.timeout)
	case result := <-req.resultCh:
		return result.Approved, nil
	}
}

// Request starts a new approval and blocks for its resolution in one call.
func (m *Manager) Request(ctx context.Context, toolName, toolArgs, description string) (string, bool, error) {
	id := m.Start(toolName, toolArgs, description)
	approved, err := m.Wait(ctx, id)
	return id, approved, err
}

// Get returns the pending request, for rendering an ApprovalRequest event.
func (m *Manager) Get(approvalID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.pending[approvalID]
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

// Cancel discards a pending approval without resolving it (e.g. on client
// disconnect).
func (m *Manager) Cancel(approvalID string) {
	m.mu.Lock()
	delete(m.pending, approvalID)
	m.mu.Unlock()
}

// Resolve delivers an accept/reject decision to whichever goroutine is
// blocked in Wait for approvalID.
func (m *Manager) Resolve(approvalID string, approved bool) error {
	m.mu.Lock()
	req, ok := m.pending[approvalID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if req.resolved {
		m.mu.Unlock()
		return ErrAlreadyResolved
	}
	req.resolved = true
	m.mu.Unlock()

	select {
	case req.resultCh <- Result{Approved: approved}:
		logger.Info("approval resolved", "id", approvalID, "approved", approved)
	default:
		logger.Warn("approval channel full", "id", approvalID)
	}
	return nil
}

func (m *Manager) Timeout() time.Duration {
	return m.timeout
}
