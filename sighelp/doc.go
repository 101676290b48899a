// Copyright © 2024 The ELPS authors

// Package sighelp implements the client side of LSP signature help: it
// classifies trigger events, decides between fresh triggers and
// retriggers, requests textDocument/signatureHelp from the first capable
// server with a timeout, suppresses redundant redraws, and computes the
// byte range of the active parameter inside the signature label.
//
// Editors provide the collaborators (server registry, documents, popup
// surface, notices, auto-trigger glue) and call the Manager or a
// per-buffer Session.
package sighelp
