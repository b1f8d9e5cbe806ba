package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/aigent/aigent/internal/agent"
	"github.com/aigent/aigent/internal/approval"
	"github.com/aigent/aigent/internal/llm"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/session"
	"github.com/aigent/aigent/internal/tools"
)

type stubModel struct{ reply string }

func (s *stubModel) Chat(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error) {
	return s.reply, nil
}
func (s *stubModel) ChatWithTools(ctx context.Context, systemPrompt string, messages []llm.Message, toolSpecs []llm.Tool) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: s.reply}, nil
}
func (s *stubModel) ChatStream(ctx context.Context, systemPrompt string, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamToken, error) {
	ch := make(chan llm.StreamToken, 2)
	ch <- llm.StreamToken{Content: s.reply}
	ch <- llm.StreamToken{Done: true}
	close(ch)
	return ch, nil
}
func (s *stubModel) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (s *stubModel) Capabilities() llm.Capabilities                            { return llm.Capabilities{} }
func (s *stubModel) Provider() string                                          { return "stub" }
func (s *stubModel) Model() string                                             { return "stub-model" }

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	mem, err := memory.OpenMemoryManager(memory.ManagerConfig{DataRoot: root})
	if err != nil {
		t.Fatalf("OpenMemoryManager: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	model := &stubModel{reply: "hi there"}
	selector := &llm.Selector{Local: model, Cloud: model}
	executor := &tools.Executor{Registry: tools.NewRegistry(), Policy: tools.DefaultPolicy(), Approvals: approval.NewManager(time.Second)}
	runtime := agent.New(selector, mem, executor, session.NewStore(10), 5, time.Second)

	cell := NewCell(runtime, mem, executor, nil)
	socketPath := filepath.Join(root, "test.sock")
	srv := New(socketPath, cell, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown(context.Background(), nil) })

	return srv, socketPath
}

func dial(t *testing.T, socketPath string) (net.Conn, *bufio.Reader, *bufio.Writer) {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn), bufio.NewWriter(conn)
}

func TestPingRoundTrip(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "1", Command: CmdPing}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone || ev.ReplyTo != "1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestGetStatusReturnsEntryCount(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "s1", Command: CmdGetStatus}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone {
		t.Fatalf("unexpected event kind: %s", ev.Kind)
	}
	status, ok := ev.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected a status object, got %+v", ev.Payload)
	}
	if n, ok := status["entry_count"].(float64); !ok || n != 0 {
		t.Errorf("expected entry_count 0 on a fresh server, got %+v", status["entry_count"])
	}
}

func TestSubmitTurnStreamsTokensThenDone(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	payload, _ := json.Marshal(SubmitTurnPayload{User: "hello", Source: "test"})
	if err := writeFrame(w, Request{ID: "t1", Command: CmdSubmitTurn, Payload: payload}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var saw []EventKind
	for {
		var ev Event
		if err := readFrame(r, &ev); err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		saw = append(saw, ev.Kind)
		if ev.Kind == EventDone || ev.Kind == EventError {
			break
		}
	}

	if len(saw) == 0 || saw[len(saw)-1] != EventDone {
		t.Errorf("expected stream to end with Done, got %v", saw)
	}
	foundToken := false
	for _, k := range saw {
		if k == EventToken {
			foundToken = true
		}
	}
	if !foundToken {
		t.Errorf("expected at least one Token event before Done, got %v", saw)
	}
}

func TestSubscribeReceivesBroadcastEvents(t *testing.T) {
	srv, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "sub1", Command: CmdSubscribe}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	done := make(chan Event, 1)
	go func() {
		var ev Event
		if err := readFrame(r, &ev); err == nil {
			done <- ev
		}
	}()

	time.Sleep(50 * time.Millisecond) // let the subscription register
	srv.Broadcast(Event{Kind: EventMemoryUpdated})

	select {
	case ev := <-done:
		if ev.Kind != EventMemoryUpdated {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestExecuteToolRunsRegisteredHandler(t *testing.T) {
	root := t.TempDir()
	mem, err := memory.OpenMemoryManager(memory.ManagerConfig{DataRoot: root})
	if err != nil {
		t.Fatalf("OpenMemoryManager: %v", err)
	}
	defer mem.Close()

	registry := tools.NewRegistry()
	registry.RegisterNative(memory.ToolSpec{Name: "echo"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "echoed", nil
	})
	executor := &tools.Executor{Registry: registry, Policy: tools.DefaultPolicy(), Memory: mem, Approvals: approval.NewManager(time.Second)}
	executor.Policy.ApprovalMode = tools.ApprovalAutonomous

	model := &stubModel{reply: "ok"}
	selector := &llm.Selector{Local: model, Cloud: model}
	runtime := agent.New(selector, mem, executor, session.NewStore(10), 5, time.Second)
	cell := NewCell(runtime, mem, executor, nil)

	socketPath := filepath.Join(root, "tool.sock")
	srv := New(socketPath, cell, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	defer srv.Shutdown(context.Background(), nil)

	_, r, w := dial(t, socketPath)
	payload, _ := json.Marshal(ExecuteToolPayload{Name: "echo", Args: map[string]any{}})
	if err := writeFrame(w, Request{ID: "e1", Command: CmdExecuteTool, Payload: payload}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestInspectCoreReturnsOnlyCoreEntries(t *testing.T) {
	srv, socketPath := newTestServer(t)
	if err := srv.cell.Memory.Append(memory.NewEntry(memory.TierCore, "values honesty", "belief")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := srv.cell.Memory.Append(memory.NewEntry(memory.TierEpisodic, "asked about lunch", "user")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "ic1", Command: CmdInspectCore}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone {
		t.Fatalf("unexpected event: %+v", ev)
	}
	entries, ok := ev.Payload.([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected exactly 1 core entry, got %+v", ev.Payload)
	}
}

func TestWipeMemoryRejectsUnknownLayer(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	payload, _ := json.Marshal(WipeMemoryPayload{Layer: "no_such_layer"})
	if err := writeFrame(w, Request{ID: "w1", Command: CmdWipeMemory, Payload: payload}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventError {
		t.Fatalf("expected an error for an unknown layer, got %+v", ev)
	}
}

func TestExportVaultWithRemoteButNoStorageConfiguredErrors(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	payload, _ := json.Marshal(ExportVaultPayload{Remote: true})
	if err := writeFrame(w, Request{ID: "ev1", Command: CmdExportVault, Payload: payload}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventError {
		t.Fatalf("expected remote export without a storage backend to error, got %+v", ev)
	}
}

func TestReloadConfigWithoutHookBareAcks(t *testing.T) {
	_, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "rc1", Command: CmdReloadConfig}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestShutdownCommandSignalsShutdownRequested(t *testing.T) {
	srv, socketPath := newTestServer(t)
	_, r, w := dial(t, socketPath)

	if err := writeFrame(w, Request{ID: "s1", Command: CmdShutdown}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var ev Event
	if err := readFrame(r, &ev); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if ev.Kind != EventDone {
		t.Fatalf("unexpected event: %+v", ev)
	}

	select {
	case <-srv.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("CmdShutdown did not signal ShutdownRequested")
	}
}
