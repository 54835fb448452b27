package actor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestJSONCodecRoundTrip(t *testing.T) {
	seq := Seq(4294967295)
	envelopes := []*Envelope{
		NewCommandEnvelope("silvester", Ping()),
		NewCommandEnvelope("arnold", seq),
		NewMessageEnvelope("silvester", []byte(`{"words":["correct"]}`), "123", MessageTypeRequest),
		NewMessageEnvelope("silvester", nil, "", MessageTypeRequest),
		{From: "a", Payload: []byte{}, CorrelationID: strPtr(""), MessageType: MessageTypeResponse},
		{From: "", Payload: []byte{0, 255}, Command: &seq, MessageType: MessageTypeCommand},
	}

	codec := JSONCodec{}
	for _, env := range envelopes {
		b, err := codec.Encode(env)
		require.NoError(t, err)

		got, err := codec.Decode(b)
		require.NoError(t, err, string(b))
		assert.Equal(t, env, got, string(b))
	}
}

func TestJSONCodecWireFormat(t *testing.T) {
	b, err := JSONCodec{}.Encode(NewCommandEnvelope("B", Seq(123)))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"from":"B","payload":null,"correlation_id":null,"command":{"Seq":123},"message_type":"Command"}`,
		string(b))

	b, err = JSONCodec{}.Encode(NewCommandEnvelope("B", Pong()))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"command":"Pong"`)

	b, err = JSONCodec{}.Encode(NewMessageEnvelope("A", nil, "", MessageTypeRequest))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"payload":""`)
}

func TestJSONCodecDecodeFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "xxxxxx"},
		{"json null", "null"},
		{"json array", `[1,2]`},
		{"missing from", `{"message_type":"Command","command":"Ping"}`},
		{"missing message type", `{"from":"a","command":"Ping"}`},
		{"unknown message type", `{"from":"a","message_type":"Stop"}`},
		{"numeric message type", `{"from":"a","message_type":3}`},
		{"unknown command", `{"from":"a","message_type":"Command","command":"Stop"}`},
		{"bare Seq", `{"from":"a","message_type":"Command","command":"Seq"}`},
		{"negative Seq", `{"from":"a","message_type":"Command","command":{"Seq":-1}}`},
		{"extra command key", `{"from":"a","message_type":"Command","command":{"Seq":1,"Ping":2}}`},
		{"numeric command", `{"from":"a","message_type":"Command","command":7}`},
		{"payload wrong shape", `{"from":"a","message_type":"Request","payload":42}`},
		{"from wrong shape", `{"from":1,"message_type":"Request"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := JSONCodec{}.Decode([]byte(tt.input))
			assert.Nil(t, env)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.NotEmpty(t, decodeErr.Error())
		})
	}
}

func TestJSONCodecToleratesUnknownFields(t *testing.T) {
	env, err := JSONCodec{}.Decode([]byte(`{"from":"a","message_type":"Request","status":"Ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", env.From)
	assert.Equal(t, MessageTypeRequest, env.MessageType)
	assert.Nil(t, env.Command)
}

func TestJSONCodecEncodeRejectsInvalidTags(t *testing.T) {
	_, err := JSONCodec{}.Encode(&Envelope{From: "a"})
	assert.Error(t, err)

	_, err = JSONCodec{}.Encode(&Envelope{From: "a", Command: &Command{}, MessageType: MessageTypeCommand})
	assert.Error(t, err)

	_, err = JSONCodec{}.Encode(nil)
	assert.Error(t, err)
}

func TestJSONCodecEncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := JSONCodec{}.Encode(NewCommandEnvelope("a\xff", Ping()))
	assert.Error(t, err)

	_, err = JSONCodec{}.Encode(NewMessageEnvelope("a", nil, "cor\xfe", MessageTypeRequest))
	assert.Error(t, err)

	env := NewMessageEnvelope("héllo", []byte{0xff}, "cor-ü", MessageTypeRequest)
	b, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)
	got, err := JSONCodec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}
