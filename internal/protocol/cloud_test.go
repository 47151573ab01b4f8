package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestCloudEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  CloudEnvelope
	}{
		{
			name: "basic hello",
			env: CloudEnvelope{
				Command:     CloudCmdHello,
				Source:      CloudDirDevice,
				Flag1:       1,
				Destination: CloudDirCloud,
				Payload:     []byte("GA18018B3030"),
			},
		},
		{
			name: "versioned command",
			env: CloudEnvelope{
				Command:     CloudCmdCommand,
				Source:      CloudDirCloud,
				Flag1:       1,
				Destination: CloudDirDevice,
				Versioned:   true,
				Sequence:    3,
				Payload:     []byte(`ISTART[106,106,""]IEND` + "\x00"),
			},
		},
		{
			name: "empty payload",
			env: CloudEnvelope{
				Command:     CloudCmdHelloAck,
				Source:      CloudDirCloud,
				Flag1:       1,
				Destination: CloudDirDevice,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := EncodeCloudEnvelope(tt.env)
			got, consumed, err := DecodeCloudEnvelope(wire)
			if err != nil {
				t.Fatalf("DecodeCloudEnvelope: %v", err)
			}
			if consumed != len(wire) {
				t.Errorf("consumed %d of %d bytes", consumed, len(wire))
			}
			if got.Command != tt.env.Command || got.Source != tt.env.Source ||
				got.Flag1 != tt.env.Flag1 || got.Destination != tt.env.Destination {
				t.Errorf("header = %+v, want %+v", got, tt.env)
			}
			if got.Versioned != tt.env.Versioned || got.Sequence != tt.env.Sequence {
				t.Errorf("version fields = %v/%d, want %v/%d",
					got.Versioned, got.Sequence, tt.env.Versioned, tt.env.Sequence)
			}
			if !bytes.Equal(got.Payload, tt.env.Payload) {
				t.Errorf("payload = %q, want %q", got.Payload, tt.env.Payload)
			}
		})
	}
}

func TestDecodeCloudEnvelopeShortRead(t *testing.T) {
	wire := EncodeCloudEnvelope(CloudEnvelope{
		Command:     CloudCmdNotification,
		Source:      CloudDirDevice,
		Destination: CloudDirCloud,
		Versioned:   true,
		Sequence:    1,
		Payload:     []byte("[208,[4,3,1,1,\"Hall\",\"GA\",1700000000,0,[\"\"]]]"),
	})
	for cut := 0; cut < len(wire); cut++ {
		if _, _, err := DecodeCloudEnvelope(wire[:cut]); !errors.Is(err, ErrShortRead) {
			t.Fatalf("prefix of %d bytes: got %v, want ErrShortRead", cut, err)
		}
	}
}

func TestDecodeCloudEnvelopeBadLength(t *testing.T) {
	wire := make([]byte, 8)
	wire[0] = CloudCmdHello
	binary.LittleEndian.PutUint32(wire[4:8], 4)
	if _, _, err := DecodeCloudEnvelope(wire); !errors.Is(err, ErrFraming) {
		t.Errorf("undersized length: got %v, want ErrFraming", err)
	}
}

// Two envelopes packed into one buffer must decode one at a time with
// correct consumed counts, independent of how the stream was segmented.
func TestDecodeCloudEnvelopeCoalesced(t *testing.T) {
	first := EncodeCloudEnvelope(CloudEnvelope{
		Command: CloudCmdHello, Source: CloudDirDevice, Destination: CloudDirCloud,
		Payload: []byte("GA18018B3030"),
	})
	second := EncodeCloudEnvelope(CloudEnvelope{
		Command: CloudCmdStatusChange, Source: CloudDirDevice, Destination: CloudDirCloud,
		Versioned: true, Sequence: 1,
		Payload: []byte(`[170,[1,[3]]]`),
	})
	buf := append(append([]byte(nil), first...), second...)

	env1, n1, err := DecodeCloudEnvelope(buf)
	if err != nil {
		t.Fatalf("first envelope: %v", err)
	}
	if n1 != len(first) || env1.Command != CloudCmdHello {
		t.Errorf("first envelope consumed %d, cmd %#x", n1, env1.Command)
	}
	env2, n2, err := DecodeCloudEnvelope(buf[n1:])
	if err != nil {
		t.Fatalf("second envelope: %v", err)
	}
	if n1+n2 != len(buf) || env2.Command != CloudCmdStatusChange || env2.Sequence != 1 {
		t.Errorf("second envelope consumed %d, cmd %#x, seq %d", n2, env2.Command, env2.Sequence)
	}
}

// A basic header message whose payload does not start with the version
// marker must not be misread as versioned.
func TestDecodeCloudEnvelopeBasicHeaderLongPayload(t *testing.T) {
	env := CloudEnvelope{
		Command: CloudCmdHelloInfo, Source: CloudDirDevice, Destination: CloudDirCloud,
		Payload: []byte{0x30, 0x39, 0x00, 0x00, 0x05, 0x06},
	}
	wire := EncodeCloudEnvelope(env)
	got, _, err := DecodeCloudEnvelope(wire)
	if err != nil {
		t.Fatalf("DecodeCloudEnvelope: %v", err)
	}
	if got.Versioned {
		t.Error("basic header misdetected as versioned")
	}
	if !bytes.Equal(got.Payload, env.Payload) {
		t.Errorf("payload = %v, want %v", got.Payload, env.Payload)
	}
}
