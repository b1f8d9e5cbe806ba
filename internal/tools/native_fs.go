package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/aigent/aigent/internal/memory"
)

// registerFSTools wires read_file/write_file, confined to workspaceRoot and
// the configured max file size (spec §4.9 step 6).
func registerFSTools(r *Registry, workspaceRoot string, maxBytes int64) {
	r.RegisterNative(memory.ToolSpec{
		Name:        "read_file",
		Description: "Read a UTF-8 text file from the workspace.",
		Params: []memory.ToolParam{
			{Name: "path", Required: true, Description: "Path relative to the workspace root."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		if path == "" {
			return "", fmt.Errorf("path is required")
		}
		clean, err := confine(workspaceRoot, path)
		if err != nil {
			return "", err
		}
		if err := checkSize(clean, maxBytes); err != nil {
			return "", err
		}
		data, err := os.ReadFile(clean)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})

	r.RegisterNative(memory.ToolSpec{
		Name:        "write_file",
		Description: "Write (overwrite) a UTF-8 text file in the workspace.",
		Params: []memory.ToolParam{
			{Name: "path", Required: true, Description: "Path relative to the workspace root."},
			{Name: "content", Required: true, Description: "Full file content to write."},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		if path == "" {
			return "", fmt.Errorf("path is required")
		}
		clean, err := confine(workspaceRoot, path)
		if err != nil {
			return "", err
		}
		if maxBytes > 0 && int64(len(content)) > maxBytes {
			return "", ErrFileTooLarge
		}
		if err := os.MkdirAll(parentDir(clean), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(clean, []byte(content), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	})
}
