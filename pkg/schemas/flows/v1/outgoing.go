package flows

import "encoding/json"

// OutgoingMessage queues one rendered step result for delivery on
// agentic:queue:outgoing.
type OutgoingMessage struct {
	BotID       string          `json:"bot_id"`
	Target      string          `json:"target"` // platform address of the recipient
	ExecutionID string          `json:"execution_id"`
	StepOrder   int32           `json:"step_order"`
	Payload     OutgoingPayload `json:"payload"`
}

// OutgoingPayload is the deliverable content. Absent fields are omitted from
// the serialized form, never emitted as null; the delivery consumer treats
// key presence as the signal.
type OutgoingPayload struct {
	Text    *string       `json:"text,omitempty"`
	Image   *MediaPayload `json:"image,omitempty"`
	Audio   *MediaPayload `json:"audio,omitempty"`
	Caption *string       `json:"caption,omitempty"`
	PTT     *bool         `json:"ptt,omitempty"` // audio delivered as a voice note
}

type MediaPayload struct {
	URL string `json:"url"`
}

// Empty reports whether no deliverable field is set.
func (p OutgoingPayload) Empty() bool {
	return p.Text == nil && p.Image == nil && p.Audio == nil
}

func UnmarshalOutgoingMessage(data []byte) (OutgoingMessage, error) {
	var m OutgoingMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

func (m *OutgoingMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// NewOutgoingMessage assembles a delivery request for one executed flow step.
func NewOutgoingMessage(botID, target, executionID string, stepOrder int32, payload OutgoingPayload) OutgoingMessage {
	return OutgoingMessage{
		BotID:       botID,
		Target:      target,
		ExecutionID: executionID,
		StepOrder:   stepOrder,
		Payload:     payload,
	}
}

// Validate checks the fields the delivery worker cannot proceed without.
func (m *OutgoingMessage) Validate() error {
	ve := &ValidationError{}

	if m.BotID == "" {
		ve.add("bot_id", "required")
	}
	if m.Target == "" {
		ve.add("target", "required")
	}
	if m.ExecutionID == "" {
		ve.add("execution_id", "required")
	}
	if m.Payload.Empty() {
		ve.add("payload", "one of text/image/audio is required")
	}
	if m.Payload.Image != nil && m.Payload.Image.URL == "" {
		ve.add("payload.image.url", "required when image is present")
	}
	if m.Payload.Audio != nil && m.Payload.Audio.URL == "" {
		ve.add("payload.audio.url", "required when audio is present")
	}

	if len(ve.Issues) > 0 {
		return ve
	}
	return nil
}
