package conditional

import (
	"errors"
	"fmt"

	flows "github.com/agentichq/agentic-events/pkg/schemas/flows/v1"
)

var (
	// ErrUnknownKind reports a content kind this resolver version does not
	// recognize, i.e. a schema mismatch between producer and consumer.
	ErrUnknownKind = errors.New("unknown content kind")
	// ErrIncompleteContent reports content whose kind implies a field that is
	// missing or empty.
	ErrIncompleteContent = errors.New("incomplete content")
)

// TranslateOptions carries delivery hints that live outside the stored
// branch content.
type TranslateOptions struct {
	// VoiceNote marks audio for push-to-talk delivery (payload.ptt).
	VoiceNote bool
}

// Translate maps resolved branch content onto the delivery payload shape.
func Translate(c flows.BranchContent) (flows.OutgoingPayload, error) {
	return TranslateWith(c, TranslateOptions{})
}

// TranslateWith is Translate with explicit options.
//
// The mapping never guesses: an unrecognized kind is ErrUnknownKind rather
// than a silent text fallback, and a kind whose implied field is absent or
// empty is ErrIncompleteContent rather than a payload with empty required
// fields.
func TranslateWith(c flows.BranchContent, opts TranslateOptions) (flows.OutgoingPayload, error) {
	switch c.Type {
	case flows.ContentText:
		if !hasValue(c.Content) {
			return flows.OutgoingPayload{}, fmt.Errorf("%w: text content has no body", ErrIncompleteContent)
		}
		text := *c.Content
		return flows.OutgoingPayload{Text: &text}, nil

	case flows.ContentImage:
		if !hasValue(c.MediaURL) {
			return flows.OutgoingPayload{}, fmt.Errorf("%w: image content has no mediaUrl", ErrIncompleteContent)
		}
		p := flows.OutgoingPayload{Image: &flows.MediaPayload{URL: *c.MediaURL}}
		if hasValue(c.Content) {
			caption := *c.Content
			p.Caption = &caption
		}
		return p, nil

	case flows.ContentAudio:
		if !hasValue(c.MediaURL) {
			return flows.OutgoingPayload{}, fmt.Errorf("%w: audio content has no mediaUrl", ErrIncompleteContent)
		}
		p := flows.OutgoingPayload{Audio: &flows.MediaPayload{URL: *c.MediaURL}}
		if opts.VoiceNote {
			ptt := true
			p.PTT = &ptt
		}
		return p, nil

	default:
		return flows.OutgoingPayload{}, fmt.Errorf("%w: %q", ErrUnknownKind, c.Type)
	}
}

func hasValue(s *string) bool { return s != nil && *s != "" }
