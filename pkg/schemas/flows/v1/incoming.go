package flows

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IncomingKind discriminates the variants carried on agentic:queue:incoming.
type IncomingKind string

const (
	// KindNewMessage: a brand new message from WhatsApp/Telegram received by the gateway.
	KindNewMessage IncomingKind = "NEW_MESSAGE"
	// KindExecuteStep: a request from the gateway (API/cron) to execute a specific step in a flow.
	KindExecuteStep IncomingKind = "EXECUTE_STEP"
	// KindScheduleStep: a request to schedule step processing for an execution
	// (used by manual flow execution from the API).
	KindScheduleStep IncomingKind = "SCHEDULE_STEP"
)

var ErrUnknownIncomingType = errors.New("unknown incoming message type")

// IncomingMessage is the tagged union the engine consumes. The wire form is a
// flat object with a "type" discriminator next to the variant fields; decode
// with DecodeIncomingMessage and switch on the concrete type.
type IncomingMessage interface {
	IncomingKind() IncomingKind
}

type NewMessage struct {
	BotID      string         `json:"bot_id"`
	SessionID  string         `json:"session_id"`
	Identifier string         `json:"identifier"`
	Platform   string         `json:"platform"` // "whatsapp","telegram"
	FromMe     bool           `json:"from_me"`
	Sender     string         `json:"sender"`
	Message    MessageContent `json:"message"`
}

type ExecuteStep struct {
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
}

type ScheduleStep struct {
	ExecutionID string `json:"execution_id"`
	StepOrder   int32  `json:"step_order"`
}

// MessageContent is the user-visible content of a platform message.
// Absent text/mediaUrl are explicit nulls on this consumed contract.
type MessageContent struct {
	Text      *string `json:"text"`
	MediaURL  *string `json:"mediaUrl"`
	Timestamp int64   `json:"timestamp"` // unix seconds, provider clock
}

func (NewMessage) IncomingKind() IncomingKind   { return KindNewMessage }
func (ExecuteStep) IncomingKind() IncomingKind  { return KindExecuteStep }
func (ScheduleStep) IncomingKind() IncomingKind { return KindScheduleStep }

func (m NewMessage) MarshalJSON() ([]byte, error) {
	type alias NewMessage
	return json.Marshal(struct {
		Type IncomingKind `json:"type"`
		alias
	}{KindNewMessage, alias(m)})
}

func (m ExecuteStep) MarshalJSON() ([]byte, error) {
	type alias ExecuteStep
	return json.Marshal(struct {
		Type IncomingKind `json:"type"`
		alias
	}{KindExecuteStep, alias(m)})
}

func (m ScheduleStep) MarshalJSON() ([]byte, error) {
	type alias ScheduleStep
	return json.Marshal(struct {
		Type IncomingKind `json:"type"`
		alias
	}{KindScheduleStep, alias(m)})
}

// DecodeIncomingMessage decodes one queue body into its concrete variant.
// A missing or unrecognized discriminator is an error, never a silent skip:
// it means a schema/version mismatch between the gateway and this consumer.
func DecodeIncomingMessage(data []byte) (IncomingMessage, error) {
	var head struct {
		Type IncomingKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode incoming message: %w", err)
	}

	switch head.Type {
	case KindNewMessage:
		var m NewMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return m, nil
	case KindExecuteStep:
		var m ExecuteStep
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return m, nil
	case KindScheduleStep:
		var m ScheduleStep
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIncomingType, string(head.Type))
	}
}
