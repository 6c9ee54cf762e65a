// Package wire defines the JSON message envelope of the HomeConnect
// WebSocket protocol.
//
// Every frame is one JSON object:
//
//	{
//	  "sID": 1234567890,          // session id, fixed per connection
//	  "msgID": 1234567891,        // per-session message counter
//	  "resource": "/ro/values",   // topic in the service namespace
//	  "version": 1,               // version of the resource's service
//	  "action": "NOTIFY",         // GET, POST, NOTIFY or RESPONSE
//	  "data": [{"uid": 1, "value": 1}],
//	  "code": 404                 // responses only, absent on success
//	}
//
// # Nullable vs Absent
//
// sID, msgID, version and code are pointers: nil means "not set yet" and the
// session stamps sID, msgID and version just before the message is written.
// A nil Data slice is omitted from the frame; an empty non-nil slice encodes
// as "data": [].
//
// A single data object on an incoming frame is accepted and wrapped into a
// one-element list, so handlers always see a list.
package wire
