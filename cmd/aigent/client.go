package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/aigent/aigent/internal/daemon"
)

// writeRequest/readEvent mirror internal/daemon's unexported writeFrame/
// readFrame wire format (4-byte little-endian length + JSON body) since a
// client process necessarily lives outside that package.
func writeRequest(w *bufio.Writer, req daemon.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(data)))
	if _, err := w.Write(length); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

func readEvent(r *bufio.Reader) (daemon.Event, error) {
	var ev daemon.Event
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return ev, err
	}
	length := binary.LittleEndian.Uint32(lengthBuf)
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return ev, err
	}
	return ev, json.Unmarshal(body, &ev)
}

// daemonClient is a thin wrapper over one connection to the running C10
// daemon, used by every CLI subcommand that isn't `start`/`daemon start`
// itself.
type daemonClient struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func dialDaemon(socketPath string) (*daemonClient, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is it running? try `aigent daemon start`): %w", socketPath, err)
	}
	return &daemonClient{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}, nil
}

func (c *daemonClient) Close() error {
	return c.conn.Close()
}

// Call sends one request and collects every Event on the reply until a
// terminal Done or Error, invoking onEvent for each as it arrives (so
// SubmitTurn's streamed tokens can be printed live).
func (c *daemonClient) Call(cmd daemon.Command, payload any, onEvent func(daemon.Event)) (daemon.Event, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return daemon.Event{}, err
		}
	}

	req := daemon.Request{ID: "cli", Command: cmd, Payload: raw}
	if err := writeRequest(c.w, req); err != nil {
		return daemon.Event{}, err
	}

	for {
		ev, err := readEvent(c.r)
		if err != nil {
			return daemon.Event{}, err
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Kind == daemon.EventDone || ev.Kind == daemon.EventError {
			if ev.Kind == daemon.EventError {
				return ev, fmt.Errorf("daemon error: %v", ev.Payload)
			}
			return ev, nil
		}
	}
}
