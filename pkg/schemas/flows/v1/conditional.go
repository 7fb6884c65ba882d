package flows

import (
	"encoding/json"
	"fmt"
)

// Content kinds a branch or fallback may declare.
const (
	ContentText  = "text"
	ContentImage = "image"
	ContentAudio = "audio"
)

// BranchContent is one renderable content variant. Whether content/mediaUrl
// must be present depends on the kind; that is checked at translation time,
// not here, so a stored configuration always round-trips untouched.
type BranchContent struct {
	Type     string  `json:"type"` // "text","image","audio"
	Content  *string `json:"content"`
	MediaURL *string `json:"mediaUrl"`
}

// TimeBranch binds BranchContent to a [startTime, endTime) window. The
// producer inlines the content fields next to the window bounds, so the
// embedding keeps the wire object flat.
type TimeBranch struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	BranchContent
}

// ConditionalTimeMetadata is the configuration of a conditional-time flow
// step: ordered branches, where declaration order is match precedence, and
// an optional fallback for when no window contains the query time.
type ConditionalTimeMetadata struct {
	Branches []TimeBranch   `json:"branches"`
	Fallback *BranchContent `json:"fallback"`
}

func UnmarshalConditionalTimeMetadata(data []byte) (ConditionalTimeMetadata, error) {
	var m ConditionalTimeMetadata
	err := json.Unmarshal(data, &m)
	return m, err
}

func (m *ConditionalTimeMetadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks structural completeness of a stored configuration. Time
// strings are only required to be present; parsing them is the resolver's
// job and failures there are reported per branch.
func (m *ConditionalTimeMetadata) Validate() error {
	ve := &ValidationError{}

	for i, b := range m.Branches {
		if b.StartTime == "" {
			ve.add(fmt.Sprintf("branches[%d].startTime", i), "required")
		}
		if b.EndTime == "" {
			ve.add(fmt.Sprintf("branches[%d].endTime", i), "required")
		}
		if b.Type == "" {
			ve.add(fmt.Sprintf("branches[%d].type", i), "required")
		}
	}
	if m.Fallback != nil && m.Fallback.Type == "" {
		ve.add("fallback.type", "required")
	}

	if len(ve.Issues) > 0 {
		return ve
	}
	return nil
}
