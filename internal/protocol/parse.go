package protocol

import (
	"bytes"
	"encoding/json"
)

// isNullResult reports whether a raw response body is empty or JSON null.
// Servers answer "no result" both ways and callers treat them alike.
func isNullResult(data json.RawMessage) bool {
	return len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// ParseCompletionResult parses a completion response, which the protocol
// permits to be a CompletionList, a bare item array, or null.
// Null and empty results normalize to nil, not an error.
func ParseCompletionResult(data json.RawMessage) (*CompletionList, error) {
	if isNullResult(data) {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []CompletionItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return &CompletionList{Items: items}, nil
	}

	var list CompletionList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ParseLocationResult parses a definition response, which may be a single
// Location, a Location array, a LocationLink array, or null.
func ParseLocationResult(data json.RawMessage) ([]Location, error) {
	if isNullResult(data) {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var loc Location
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return nil, err
		}
		return []Location{loc}, nil
	}

	var locs []Location
	if err := json.Unmarshal(trimmed, &locs); err == nil && allHaveURIs(locs) {
		return locs, nil
	}

	var links []LocationLink
	if err := json.Unmarshal(trimmed, &links); err != nil {
		return nil, err
	}
	locs = locs[:0]
	for _, l := range links {
		locs = append(locs, Location{URI: l.TargetURI, Range: l.TargetSelectionRange})
	}
	return locs, nil
}

func allHaveURIs(locs []Location) bool {
	for _, l := range locs {
		if l.URI == "" {
			return false
		}
	}
	return len(locs) > 0
}

// ParseHoverResult parses a hover response. The contents field may be a
// MarkupContent object, a bare string, or a (possibly mixed) array of
// strings and {language, value} pairs from older servers; everything
// normalizes to MarkupContent.
func ParseHoverResult(data json.RawMessage) (*Hover, error) {
	if isNullResult(data) {
		return nil, nil
	}

	var probe struct {
		Contents json.RawMessage `json:"contents"`
		Range    *Range          `json:"range"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if isNullResult(probe.Contents) {
		return nil, nil
	}

	contents, err := parseHoverContents(probe.Contents)
	if err != nil {
		return nil, err
	}
	if contents.Value == "" {
		return nil, nil
	}
	return &Hover{Contents: contents, Range: probe.Range}, nil
}

func parseHoverContents(data json.RawMessage) (MarkupContent, error) {
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return MarkupContent{}, err
		}
		return MarkupContent{Kind: MarkupKindMarkdown, Value: s}, nil

	case len(trimmed) > 0 && trimmed[0] == '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return MarkupContent{}, err
		}
		var buf bytes.Buffer
		for _, p := range parts {
			mc, err := parseHoverContents(p)
			if err != nil {
				continue
			}
			if mc.Value == "" {
				continue
			}
			if buf.Len() > 0 {
				buf.WriteString("\n\n")
			}
			buf.WriteString(mc.Value)
		}
		return MarkupContent{Kind: MarkupKindMarkdown, Value: buf.String()}, nil

	default:
		// Either MarkupContent or the deprecated {language, value} pair.
		var mc MarkupContent
		if err := json.Unmarshal(trimmed, &mc); err != nil {
			return MarkupContent{}, err
		}
		if mc.Kind == "" {
			var lv struct {
				Language string `json:"language"`
				Value    string `json:"value"`
			}
			if err := json.Unmarshal(trimmed, &lv); err == nil && lv.Language != "" {
				return MarkupContent{
					Kind:  MarkupKindMarkdown,
					Value: "```" + lv.Language + "\n" + lv.Value + "\n```",
				}, nil
			}
			mc.Kind = MarkupKindMarkdown
		}
		return mc, nil
	}
}

// ParsePrepareRenameResult parses a prepareRename response, which may be a
// bare Range, a {range, placeholder} object, or null when rename is invalid
// at the position.
func ParsePrepareRenameResult(data json.RawMessage) (*PrepareRenameResult, error) {
	if isNullResult(data) {
		return nil, nil
	}

	var res PrepareRenameResult
	if err := json.Unmarshal(data, &res); err == nil && res.Range != nil {
		return &res, nil
	}

	var rng Range
	if err := json.Unmarshal(data, &rng); err != nil {
		return nil, err
	}
	return &PrepareRenameResult{Range: &rng}, nil
}

// ParseCodeActionResult parses a codeAction response, whose elements may be
// CodeAction literals or bare Commands. Commands normalize to a CodeAction
// carrying only the command reference.
func ParseCodeActionResult(data json.RawMessage) ([]CodeAction, error) {
	if isNullResult(data) {
		return nil, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}

	actions := make([]CodeAction, 0, len(parts))
	for _, p := range parts {
		var probe struct {
			Command json.RawMessage `json:"command"`
		}
		if err := json.Unmarshal(p, &probe); err != nil {
			return nil, err
		}

		// In a bare Command the command field is a string; in a CodeAction
		// it is an object (or absent).
		if len(probe.Command) > 0 && probe.Command[0] == '"' {
			var cmd Command
			if err := json.Unmarshal(p, &cmd); err != nil {
				return nil, err
			}
			actions = append(actions, CodeAction{Title: cmd.Title, Command: &cmd})
			continue
		}

		var action CodeAction
		if err := json.Unmarshal(p, &action); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if len(actions) == 0 {
		return nil, nil
	}
	return actions, nil
}

// ExtractDocumentation pulls a documentation string out of the union types
// the protocol uses (string or MarkupContent).
func ExtractDocumentation(doc any) string {
	switch v := doc.(type) {
	case nil:
		return ""
	case string:
		return v
	case MarkupContent:
		return v.Value
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}
