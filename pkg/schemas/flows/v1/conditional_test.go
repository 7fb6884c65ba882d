package flows

import (
	"errors"
	"strings"
	"testing"
)

func TestUnmarshalConditionalTimeMetadata(t *testing.T) {
	raw := `{
		"branches": [
			{"startTime": "08:00", "endTime": "12:00", "type": "text", "content": "bom dia", "mediaUrl": null},
			{"startTime": "12:00", "endTime": "18:00", "type": "image", "content": "menu", "mediaUrl": "https://cdn.example.com/menu.png"}
		],
		"fallback": {"type": "text", "content": "we are closed", "mediaUrl": null}
	}`

	m, err := UnmarshalConditionalTimeMetadata([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalConditionalTimeMetadata() error = %v", err)
	}
	if len(m.Branches) != 2 {
		t.Fatalf("branches = %d, want 2", len(m.Branches))
	}

	first := m.Branches[0]
	if first.StartTime != "08:00" || first.EndTime != "12:00" {
		t.Errorf("window = [%s, %s)", first.StartTime, first.EndTime)
	}
	if first.Type != ContentText || first.Content == nil || *first.Content != "bom dia" {
		t.Errorf("inline content fields = %+v", first.BranchContent)
	}
	if first.MediaURL != nil {
		t.Errorf("mediaUrl = %v, want nil for explicit null", *first.MediaURL)
	}

	second := m.Branches[1]
	if second.Type != ContentImage || second.MediaURL == nil || *second.MediaURL != "https://cdn.example.com/menu.png" {
		t.Errorf("inline content fields = %+v", second.BranchContent)
	}

	if m.Fallback == nil || m.Fallback.Content == nil || *m.Fallback.Content != "we are closed" {
		t.Errorf("fallback = %+v", m.Fallback)
	}
}

func TestUnmarshalConditionalTimeMetadata_NullFallback(t *testing.T) {
	m, err := UnmarshalConditionalTimeMetadata([]byte(`{"branches": [], "fallback": null}`))
	if err != nil {
		t.Fatalf("UnmarshalConditionalTimeMetadata() error = %v", err)
	}
	if m.Fallback != nil {
		t.Errorf("fallback = %+v, want nil", m.Fallback)
	}
	if len(m.Branches) != 0 {
		t.Errorf("branches = %d, want 0", len(m.Branches))
	}
}

func TestTimeBranch_MarshalStaysFlat(t *testing.T) {
	content := "bom dia"
	b := TimeBranch{
		StartTime: "08:00",
		EndTime:   "12:00",
		BranchContent: BranchContent{
			Type:    ContentText,
			Content: &content,
		},
	}

	m := ConditionalTimeMetadata{Branches: []TimeBranch{b}}
	out, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"branches":[{"startTime":"08:00","endTime":"12:00","type":"text",` +
		`"content":"bom dia","mediaUrl":null}],"fallback":null}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
	if strings.Contains(string(out), "BranchContent") {
		t.Errorf("embedded content fields did not flatten: %s", out)
	}
}

func TestConditionalTimeMetadata_Validate(t *testing.T) {
	content := "x"
	good := ConditionalTimeMetadata{
		Branches: []TimeBranch{{
			StartTime:     "08:00",
			EndTime:       "12:00",
			BranchContent: BranchContent{Type: ContentText, Content: &content},
		}},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() on valid metadata = %v", err)
	}

	bad := ConditionalTimeMetadata{
		Branches: []TimeBranch{{
			EndTime:       "12:00",
			BranchContent: BranchContent{Content: &content},
		}},
		Fallback: &BranchContent{},
	}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("Validate() error = %v, want ErrInvalidContract", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() error type = %T", err)
	}
	wantFields := map[string]bool{
		"branches[0].startTime": false,
		"branches[0].type":      false,
		"fallback.type":         false,
	}
	for _, issue := range ve.Issues {
		if _, ok := wantFields[issue.Field]; ok {
			wantFields[issue.Field] = true
		}
	}
	for field, seen := range wantFields {
		if !seen {
			t.Errorf("Validate() issues %+v missing field %q", ve.Issues, field)
		}
	}
}
