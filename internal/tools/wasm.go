package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
)

// guestHost owns the wazero runtime shared by every discovered WASM guest
// tool. One runtime, compiled modules cached; a fresh instance is
// instantiated per call so guests stay stateless (spec §4.9's WASM guest
// protocol: "Each invocation gets a fresh instance (stateless)").
type guestHost struct {
	ctx           context.Context
	runtime       wazero.Runtime
	workspaceRoot string
}

func newGuestHost(ctx context.Context, workspaceRoot string) *guestHost {
	runtime := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)
	return &guestHost{ctx: ctx, runtime: runtime, workspaceRoot: workspaceRoot}
}

func (h *guestHost) Close() {
	_ = h.runtime.Close(h.ctx)
}

// guestResponse is the WASM guest protocol's stdout contract (spec §4.9):
// `{success, output}` as a single JSON object.
type guestResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// invoke runs one guest instance with args marshaled to JSON on stdin,
// capturing up to maxToolOutputBytes of stdout, and pre-opening only the
// workspace directory.
func (h *guestHost) invoke(ctx context.Context, compiled wazero.CompiledModule, args map[string]any) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(payload)).
		WithStdout(&capBuffer{buf: &stdout, limit: maxToolOutputBytes}).
		WithStderr(&stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(h.workspaceRoot, "/workspace")).
		WithArgs("guest")

	mod, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() != 0 {
				return "", fmt.Errorf("guest exited with code %d: %s", exitErr.ExitCode(), stderr.String())
			}
		} else {
			return "", fmt.Errorf("guest instantiation failed: %w", err)
		}
	}

	var resp guestResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("guest produced invalid response: %w (stderr: %s)", err, stderr.String())
	}
	if !resp.Success {
		return resp.Output, fmt.Errorf("guest reported failure")
	}
	return resp.Output, nil
}

// capBuffer caps writes at limit bytes, silently dropping the excess, so a
// runaway guest can't exhaust host memory.
type capBuffer struct {
	buf   *bytes.Buffer
	limit int
}

func (w *capBuffer) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.limit {
		return len(p), nil
	}
	room := w.limit - w.buf.Len()
	if len(p) > room {
		w.buf.Write(p[:room])
		return len(p), nil
	}
	return w.buf.Write(p)
}

// DiscoverWASMGuests walks extensionsDir for guest tools and registers each
// ahead of the native baseline (spec §4.9: "WASM guest tools are discovered
// under the extensions directory (either <dir>/<name>.wasm or the
// sub-workspace layout <dir>/tools-src/<crate>/target/wasm32-wasip1/release/
// *.wasm) and registered first").
func DiscoverWASMGuests(ctx context.Context, r *Registry, extensionsDir, workspaceRoot string) (func(), error) {
	host := newGuestHost(ctx, workspaceRoot)
	closeFn := host.Close

	found, err := findGuestFiles(extensionsDir)
	if err != nil {
		closeFn()
		return func() {}, err
	}

	for name, path := range found {
		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("wasm guest: failed to read module", "name", name, "path", path, "err", err)
			continue
		}
		compiled, err := host.runtime.CompileModule(ctx, wasmBytes)
		if err != nil {
			logger.Warn("wasm guest: failed to compile module", "name", name, "path", path, "err", err)
			continue
		}

		name, compiled := name, compiled
		r.RegisterWASM(memory.ToolSpec{
			Name:        name,
			Description: fmt.Sprintf("WASM guest tool loaded from %s.", path),
		}, func(ctx context.Context, args map[string]any) (string, error) {
			return host.invoke(ctx, compiled, args)
		})
		logger.Info("wasm guest tool registered", "name", name, "path", path)
	}

	return closeFn, nil
}

// findGuestFiles resolves both layouts named in spec §4.9's discovery rule,
// returning tool name -> .wasm path.
func findGuestFiles(extensionsDir string) (map[string]string, error) {
	found := make(map[string]string)
	if extensionsDir == "" {
		return found, nil
	}
	if _, err := os.Stat(extensionsDir); os.IsNotExist(err) {
		return found, nil
	}

	flat, err := filepath.Glob(filepath.Join(extensionsDir, "*.wasm"))
	if err != nil {
		return nil, err
	}
	for _, path := range flat {
		name := strings.TrimSuffix(filepath.Base(path), ".wasm")
		found[name] = path
	}

	nested, err := filepath.Glob(filepath.Join(extensionsDir, "tools-src", "*", "target", "wasm32-wasip1", "release", "*.wasm"))
	if err != nil {
		return nil, err
	}
	for _, path := range nested {
		name := strings.TrimSuffix(filepath.Base(path), ".wasm")
		if _, taken := found[name]; !taken {
			found[name] = path
		}
	}
	return found, nil
}
