// Package chat defines the two-party messaging domain shared by every other
// parley package: principals, counterparties, messages, conversation
// identifiers and the error taxonomy.
//
// A conversation is keyed by ResolveConversationID, which sorts the two
// participant ids and joins them with "_". The same derivation runs on the
// server when it routes push events, so the client can tell whether an
// inbound message belongs to the conversation on screen.
package chat
