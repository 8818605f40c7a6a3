// Package live owns the persistent push connection to the messaging service.
//
// A Manager opens one connection per Start, reconnects with capped
// exponential backoff when the connection drops, and turns inbound frames
// into a typed Event stream. Outbound frames go through a single writer
// goroutine per connection. Send fails with chat.ErrChannelUnavailable
// unless the connection is Open; callers fall back to request/response.
//
// Wire format (JSON text frames):
//
//	outbound: {"type":"message","to":"u2","text":"hi","token":"<bearer>"}
//	inbound:  {"type":"message","chatId":"u1_u2","message":{"id":1700000000000,"from":"u2","to":"u1","text":"hi"}}
package live
