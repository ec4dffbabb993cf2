package lsp

import (
	"github.com/myleshyson/lsprotocol-go/protocol"
)

// clientCapabilities builds the ClientCapabilities sent with initialize
// (spec §4.2). The daemon advertises only what it actually consumes:
// hover, document symbols, definition/references/implementation,
// call and type hierarchy, rename, and workDoneProgress for readiness
// tracking. It does not advertise semantic tokens or code lens since no
// handler reads them.
func clientCapabilities() protocol.ClientCapabilities {
	trueVal := true
	return protocol.ClientCapabilities{
		Workspace: &protocol.WorkspaceClientCapabilities{
			WorkspaceFolders: &trueVal,
			Symbol: &protocol.WorkspaceSymbolClientCapabilities{
				DynamicRegistration: &trueVal,
			},
			Configuration:              &trueVal,
			ApplyEdit:                  &trueVal,
			DidChangeWatchedFiles:      &protocol.DidChangeWatchedFilesClientCapabilities{DynamicRegistration: &trueVal},
			DidChangeConfiguration:     &protocol.DidChangeConfigurationClientCapabilities{DynamicRegistration: &trueVal},
			WorkspaceEdit:              &protocol.WorkspaceEditClientCapabilities{DocumentChanges: &trueVal},
			ExecuteCommand:             &protocol.ExecuteCommandClientCapabilities{DynamicRegistration: &trueVal},
			FileOperations: &protocol.FileOperationClientCapabilities{
				DynamicRegistration: &trueVal,
				WillRename:          &trueVal,
				DidRename:           &trueVal,
			},
		},
		TextDocument: &protocol.TextDocumentClientCapabilities{
			Synchronization: &protocol.TextDocumentSyncClientCapabilities{
				DynamicRegistration: &trueVal,
				DidSave:             &trueVal,
			},
			Hover: &protocol.HoverClientCapabilities{
				DynamicRegistration: &trueVal,
				ContentFormat:       []protocol.MarkupKind{protocol.MarkupKindMarkdown, protocol.MarkupKindPlainText},
			},
			DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{
				DynamicRegistration:               &trueVal,
				HierarchicalDocumentSymbolSupport: &trueVal,
			},
			Definition: &protocol.DefinitionClientCapabilities{
				DynamicRegistration: &trueVal,
				LinkSupport:         &trueVal,
			},
			Declaration: &protocol.DeclarationClientCapabilities{
				DynamicRegistration: &trueVal,
				LinkSupport:         &trueVal,
			},
			References: &protocol.ReferenceClientCapabilities{
				DynamicRegistration: &trueVal,
			},
			Implementation: &protocol.ImplementationClientCapabilities{
				DynamicRegistration: &trueVal,
				LinkSupport:         &trueVal,
			},
			TypeDefinition: &protocol.TypeDefinitionClientCapabilities{
				DynamicRegistration: &trueVal,
				LinkSupport:         &trueVal,
			},
			CallHierarchy: &protocol.CallHierarchyClientCapabilities{
				DynamicRegistration: &trueVal,
			},
			TypeHierarchy: &protocol.TypeHierarchyClientCapabilities{
				DynamicRegistration: &trueVal,
			},
			Rename: &protocol.RenameClientCapabilities{
				DynamicRegistration: &trueVal,
				PrepareSupport:      &trueVal,
			},
			PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{
				RelatedInformation: &trueVal,
			},
		},
		Window: &protocol.WindowClientCapabilities{
			WorkDoneProgress: &trueVal,
		},
	}
}

// capabilityEnabled looks up whether the server's advertised
// ServerCapabilities enable a feature named by a short key. Handlers check
// it before sending and return MethodNotSupportedError when the capability
// is absent; an unrecognized key reports false.
func capabilityEnabled(caps protocol.ServerCapabilities, capability string) bool {
	switch capability {
	case "definition":
		return caps.DefinitionProvider != nil
	case "declaration":
		return caps.DeclarationProvider != nil
	case "references":
		return caps.ReferencesProvider != nil
	case "implementation":
		return caps.ImplementationProvider != nil
	case "typeDefinition":
		return caps.TypeDefinitionProvider != nil
	case "documentSymbol":
		return caps.DocumentSymbolProvider != nil
	case "workspaceSymbol":
		return caps.WorkspaceSymbolProvider != nil
	case "hover":
		return caps.HoverProvider != nil
	case "rename":
		return caps.RenameProvider != nil
	case "callHierarchy":
		return caps.CallHierarchyProvider != nil
	case "typeHierarchy":
		return caps.TypeHierarchyProvider != nil
	case "codeAction":
		return caps.CodeActionProvider != nil
	case "formatting":
		return caps.DocumentFormattingProvider != nil
	case "willRename":
		return caps.Workspace != nil &&
			caps.Workspace.FileOperations != nil &&
			caps.Workspace.FileOperations.WillRename != nil
	default:
		return false
	}
}
