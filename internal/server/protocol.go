package server

import (
	"encoding/json"
	"fmt"

	"github.com/kilnhq/kiln/internal/buildspec"
)

// Command names a message type on the daemon socket. Requests and
// responses share the envelope format; the command tells them apart.
type Command string

const (
	CmdBuild    Command = "build"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"

	CmdOK    Command = "ok"
	CmdError Command = "error"
)

// Envelope frames every message in both directions: a command name and an
// optional JSON payload. Messages are newline-delimited on the wire; one
// request-response exchange per connection.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals a command and payload into an envelope, without the
// trailing newline.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		env.Payload = data
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return data, nil
}

// Decode parses an envelope and returns it with its raw payload. Payload
// decoding is deferred to [DecodePayload] so dispatch can route on the
// command before committing to a payload shape.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// DecodePayload unmarshals an envelope payload into a concrete request or
// result type.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrProtocol)
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return &v, nil
}

// BuildRequest submits one build to the daemon.
type BuildRequest struct {
	Request buildspec.Request `json:"request"`
}

// BuildResult reports a finished build back to the client.
type BuildResult struct {
	Package   string   `json:"package"`             // Path of the relocatable package.
	Output    string   `json:"output"`              // Committed output directory.
	Published []string `json:"published,omitempty"` // tier/key pairs written.
	Skipped   []string `json:"skipped,omitempty"`   // tier/key pairs already present.
	Failures  []string `json:"failures,omitempty"`  // Per-tier publish failures.
	Warnings  []string `json:"warnings,omitempty"`  // Cached artifacts demoted to local builds.
}

// StatusResult reports daemon liveness and counters.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// ErrorResult carries a failure message back to the client.
type ErrorResult struct {
	Message string `json:"message"`
}
