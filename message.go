// Copyright 2026 The Drover Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package drover

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// The IPC channel carries a stream of JSON objects, one per message,
// each wrapped in a versioned envelope.  Unrecognized envelope tags
// and unsupported versions are rejected at the decode boundary rather
// than silently ignored.

// WireVersion is the envelope version this implementation speaks.
const WireVersion = 1

// Command is a lifecycle command sent orchestrator to child.
type Command string

const (
	CommandStop Command = "STOP"
	CommandQuit Command = "QUIT"
)

const (
	typeCommand = "command"
	typeStatus  = "status"
	typeMessage = "message"
)

// Message is one decoded IPC message.  It is a closed union:
// CommandMessage, StatusMessage or AppMessage.
type Message interface {
	isMessage()
}

// CommandMessage instructs the child to begin a stop or quit
// handshake.
type CommandMessage struct {
	Command Command
}

// StatusMessage reports a lifecycle status transition of the child.
type StatusMessage struct {
	Status Status
}

// AppMessage carries an opaque application payload, forwarded
// verbatim in either direction.
type AppMessage struct {
	Payload json.RawMessage
}

func (CommandMessage) isMessage() {}
func (StatusMessage) isMessage()  {}
func (AppMessage) isMessage()     {}

// envelope is the on-the-wire shape of every message.
type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	Command Command         `json:"command,omitempty"`
	Status  Status          `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageEncoder writes messages to one side of an IPC channel.  Safe
// for concurrent use.
type MessageEncoder struct {
	mx  sync.Mutex
	enc *json.Encoder
}

func NewMessageEncoder(w io.Writer) *MessageEncoder {
	return &MessageEncoder{enc: json.NewEncoder(w)}
}

func (e *MessageEncoder) Encode(m Message) error {
	env := envelope{V: WireVersion}
	switch m := m.(type) {
	case CommandMessage:
		env.Type = typeCommand
		env.Command = m.Command
	case StatusMessage:
		env.Type = typeStatus
		env.Status = m.Status
	case AppMessage:
		env.Type = typeMessage
		env.Payload = m.Payload
	default:
		return fmt.Errorf("%w: unencodable message %T", ErrProtocol, m)
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.enc.Encode(&env)
}

// MessageDecoder reads messages from one side of an IPC channel.
type MessageDecoder struct {
	dec *json.Decoder
}

func NewMessageDecoder(r io.Reader) *MessageDecoder {
	return &MessageDecoder{dec: json.NewDecoder(r)}
}

// Decode returns the next message.  io.EOF signals an orderly end of
// the stream; any malformed or unrecognized message is rejected with
// an error wrapping ErrProtocol.
func (d *MessageDecoder) Decode() (Message, error) {
	var env envelope
	if err := d.dec.Decode(&env); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if env.V != WireVersion {
		return nil, fmt.Errorf("%w: unsupported wire version %d", ErrProtocol, env.V)
	}
	switch env.Type {
	case typeCommand:
		switch env.Command {
		case CommandStop, CommandQuit:
			return CommandMessage{Command: env.Command}, nil
		}
		return nil, fmt.Errorf("%w: unknown command %q", ErrProtocol, env.Command)
	case typeStatus:
		if !env.Status.valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrProtocol, env.Status)
		}
		return StatusMessage{Status: env.Status}, nil
	case typeMessage:
		return AppMessage{Payload: env.Payload}, nil
	}
	return nil, fmt.Errorf("%w: unknown message type %q", ErrProtocol, env.Type)
}
