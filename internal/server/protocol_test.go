package server

import (
	"errors"
	"testing"

	"github.com/kilnhq/kiln/internal/buildspec"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	req := &BuildRequest{Request: buildspec.Request{
		Version:     "25.11",
		Toolchain:   "noble",
		Arch:        "amd64",
		CacheMode:   buildspec.CacheAll,
		PublishMode: buildspec.PublishDeps,
	}}

	data, err := Encode(CmdBuild, req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("command = %q, want %q", env.Command, CmdBuild)
	}

	got, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.Request != req.Request {
		t.Fatalf("request = %+v, want %+v", got.Request, req.Request)
	}
}

func TestEncodeOmitsNilPayload(t *testing.T) {
	data, err := Encode(CmdOK, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %s, want empty", payload)
	}
}

func TestDecodeRejectsMalformedMessages(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "ceci n'est pas du json\n"},
		{"missing command", `{"payload":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Decode([]byte(tc.data)); !errors.Is(err, ErrProtocol) {
				t.Fatalf("Decode error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestDecodePayloadRequiresPayload(t *testing.T) {
	if _, err := DecodePayload[BuildRequest](nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("DecodePayload error = %v, want ErrProtocol", err)
	}
}
