package protocol

import (
	"github.com/tidwall/gjson"
)

// Capabilities combines the typed view of the server's initialize result
// with the raw JSON, so callers can gate on well-known features through the
// struct and probe anything else by path. The raw form matters because the
// protocol allows most provider fields to be a bool, an object, or absent,
// and servers routinely ship experimental capabilities with no typed shape.
type Capabilities struct {
	typed ServerCapabilities
	raw   []byte
}

// NewCapabilities builds a Capabilities view from the typed struct and the
// raw capabilities JSON as received from the server.
func NewCapabilities(typed ServerCapabilities, raw []byte) *Capabilities {
	return &Capabilities{typed: typed, raw: raw}
}

// Server returns the typed capability struct.
func (c *Capabilities) Server() ServerCapabilities {
	if c == nil {
		return ServerCapabilities{}
	}
	return c.typed
}

// Value probes the raw capabilities by gjson path, e.g.
// "completionProvider.triggerCharacters" or "experimental.serverStatus".
func (c *Capabilities) Value(path string) gjson.Result {
	if c == nil || len(c.raw) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(c.raw, path)
}

// Supports reports whether the capability at path is present and not
// explicitly false.
func (c *Capabilities) Supports(path string) bool {
	v := c.Value(path)
	if !v.Exists() {
		return false
	}
	if v.Type == gjson.False {
		return false
	}
	return true
}

// CompletionTriggers returns the server's completion trigger characters.
func (c *Capabilities) CompletionTriggers() []string {
	if c == nil || c.typed.CompletionProvider == nil {
		return nil
	}
	return c.typed.CompletionProvider.TriggerCharacters
}

// SignatureTriggers returns the server's signature-help trigger characters.
func (c *Capabilities) SignatureTriggers() []string {
	if c == nil || c.typed.SignatureHelpProvider == nil {
		return nil
	}
	return c.typed.SignatureHelpProvider.TriggerCharacters
}

// SyncKind returns the negotiated document sync kind. Servers may declare it
// as a bare number or as an object with a "change" field.
func (c *Capabilities) SyncKind() TextDocumentSyncKind {
	if c == nil {
		return TextDocumentSyncKindNone
	}
	switch v := c.typed.TextDocumentSync.(type) {
	case float64:
		return TextDocumentSyncKind(int(v))
	case int:
		return TextDocumentSyncKind(v)
	case map[string]any:
		if change, ok := v["change"].(float64); ok {
			return TextDocumentSyncKind(int(change))
		}
		return TextDocumentSyncKindFull
	case nil:
		return TextDocumentSyncKindNone
	default:
		return TextDocumentSyncKindFull
	}
}

// HasCapability reports whether a bool-or-object capability field is enabled.
func HasCapability(capability any) bool {
	switch v := capability.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		// An object (or anything else non-nil) means enabled with options.
		return true
	}
}

// DefaultClientCapabilities is the capability descriptor sent during
// initialize unless the caller overrides or transforms it.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: &WorkspaceClientCapabilities{
			ApplyEdit:        true,
			WorkspaceFolders: true,
			Configuration:    true,
			WorkspaceEdit:    &WorkspaceEditClientCapabilities{DocumentChanges: true},
		},
		TextDocument: &TextDocumentClientCapabilities{
			Synchronization: &TextDocumentSyncClientCapabilities{DidSave: true},
			Completion: &CompletionClientCapabilities{
				CompletionItem: &CompletionItemCapabilities{
					SnippetSupport:      true,
					DocumentationFormat: []MarkupKind{MarkupKindMarkdown, MarkupKindPlainText},
					PreselectSupport:    true,
				},
				ContextSupport: true,
			},
			Hover: &HoverClientCapabilities{
				ContentFormat: []MarkupKind{MarkupKindMarkdown, MarkupKindPlainText},
			},
			SignatureHelp: &SignatureHelpClientCapabilities{
				SignatureInformation: &SignatureInformationCapabilities{
					DocumentationFormat: []MarkupKind{MarkupKindMarkdown, MarkupKindPlainText},
				},
				ContextSupport: true,
			},
			Definition: &DefinitionClientCapabilities{LinkSupport: true},
			CodeAction: &CodeActionClientCapabilities{
				CodeActionLiteralSupport: &CodeActionLiteralSupport{
					CodeActionKind: CodeActionKindSupport{
						ValueSet: []CodeActionKind{
							CodeActionKindQuickFix,
							CodeActionKindRefactor,
							CodeActionKindSource,
							CodeActionKindSourceOrganizeImports,
						},
					},
				},
			},
			Rename: &RenameClientCapabilities{PrepareSupport: true},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{
				RelatedInformation: true,
				VersionSupport:     true,
			},
		},
	}
}
