package protocol

// Protocol method names. Keeping these as constants gives the session a
// single place that maps a method to its parameter and result shapes.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"

	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidClose  = "textDocument/didClose"

	MethodHover             = "textDocument/hover"
	MethodCompletion        = "textDocument/completion"
	MethodCompletionResolve = "completionItem/resolve"
	MethodDefinition        = "textDocument/definition"
	MethodCodeAction        = "textDocument/codeAction"
	MethodRename            = "textDocument/rename"
	MethodPrepareRename     = "textDocument/prepareRename"
	MethodSignatureHelp     = "textDocument/signatureHelp"

	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodConfiguration      = "workspace/configuration"
)
