package service

import (
	"encoding/json"
	"strings"

	"github.com/csvpilot/csvpilot/internal/assistant"
	"github.com/csvpilot/csvpilot/internal/domain"
)

// LatestAssistantMessage returns the newest assistant-authored message.
// Messages are expected newest first. Older assistant messages are never
// consulted, even when the newest one has no text.
func LatestAssistantMessage(messages []assistant.Message) *assistant.Message {
	for i := range messages {
		if messages[i].Role == "assistant" {
			return &messages[i]
		}
	}
	return nil
}

// ExtractManifest pulls the structured manifest out of the newest
// assistant-authored message. The reply may be a bare
// {insight, files, metadata} object, a {manifest: {...}} wrapper, or prose
// with an embedded JSON object. When no JSON can be parsed at all, a
// degraded manifest is synthesized from the first line of the text, so the
// only error this returns is not-found.
func ExtractManifest(messages []assistant.Message) (*domain.Manifest, error) {
	msg := LatestAssistantMessage(messages)
	if msg == nil {
		return nil, &domain.NotFoundError{Resource: "assistant reply"}
	}

	text := strings.TrimSpace(msg.Text())
	if text == "" {
		return nil, &domain.NotFoundError{Resource: "assistant reply"}
	}

	manifest, err := parseManifest(text)
	if err == nil {
		return manifest, nil
	}

	// Replies often wrap the JSON in prose; retry on the outermost object.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if manifest, embeddedErr := parseManifest(text[start : end+1]); embeddedErr == nil {
			return manifest, nil
		}
	}

	return degradedManifest(text, err), nil
}

func parseManifest(text string) (*domain.Manifest, error) {
	var wrapper struct {
		Manifest *domain.Manifest `json:"manifest"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Manifest != nil {
		normalize(wrapper.Manifest)
		return wrapper.Manifest, nil
	}

	var bare domain.Manifest
	if err := json.Unmarshal([]byte(text), &bare); err != nil {
		return nil, err
	}
	normalize(&bare)
	return &bare, nil
}

func degradedManifest(text string, parseErr error) *domain.Manifest {
	firstLine := text
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	return &domain.Manifest{
		Insight: strings.TrimSpace(firstLine),
		Files:   []domain.ManifestFile{},
		Metadata: map[string]any{
			"analysis_type": "unknown",
			"fallback":      true,
			"parse_error":   parseErr.Error(),
		},
	}
}

func normalize(m *domain.Manifest) {
	if m.Files == nil {
		m.Files = []domain.ManifestFile{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
}
