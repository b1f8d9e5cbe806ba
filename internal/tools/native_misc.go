package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aigent/aigent/internal/memory"
)

// registerDraftEmailTool wires draft_email. Aigent has no outbound mail
// transport configured (spec names no SMTP component), so drafting means
// composing and persisting the message under workspace/drafts for the user
// to review and send themselves.
func registerDraftEmailTool(r *Registry, workspaceRoot string) {
	r.RegisterNative(memory.ToolSpec{
		Name:        "draft_email",
		Description: "Compose an email draft and save it to workspace/drafts for review; does not send anything.",
		Params: []memory.ToolParam{
			{Name: "to", Required: true, Description: "Recipient address."},
			{Name: "subject", Required: true, Description: "Email subject."},
			{Name: "body", Required: true, Description: "Email body."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		to, _ := args["to"].(string)
		subject, _ := args["subject"].(string)
		body, _ := args["body"].(string)
		if to == "" || subject == "" {
			return "", fmt.Errorf("to and subject are required")
		}

		draftsDir := filepath.Join(workspaceRoot, "drafts")
		if err := os.MkdirAll(draftsDir, 0o755); err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s-email.eml", time.Now().UTC().Format("20060102T150405Z"))
		path := filepath.Join(draftsDir, name)

		content := fmt.Sprintf("To: %s\nSubject: %s\n\n%s\n", to, subject, body)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("draft saved to drafts/%s", name), nil
	})
}

// registerGitRollbackTool wires git_rollback, discarding uncommitted
// changes and resetting to HEAD (spec §4.9's native tool set). Read-only in
// the sense it never writes new content of its own — it only undoes.
func registerGitRollbackTool(r *Registry, workspaceRoot string) {
	r.RegisterNative(memory.ToolSpec{
		Name:        "git_rollback",
		Description: "Discard uncommitted workspace changes and reset to the last commit.",
		Params:      nil,
	}, func(ctx context.Context, args map[string]any) (string, error) {
		if !isGitRepo(workspaceRoot) {
			return "", fmt.Errorf("workspace is not a git repository")
		}
		return rollbackLast(workspaceRoot)
	})
}
