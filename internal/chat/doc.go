// Package chat defines the conversation-level types shared by the mode
// engine and the transport layer: messages, multimodal content parts,
// transport input items, and token usage accounting.
//
// Everything in this package is a pure data type or a pure transform.
// Nothing here performs I/O or depends on a collaborator, which keeps the
// mode strategies testable with plain literals.
package chat
