// Package hub fans appliance state out to admin WebSocket clients.
//
// A client receives {"action":"init","entities":[...]} on connect and
// {"action":"update","entity":{...}} whenever an entity changes, either
// through a protocol peer or through another admin client. Clients edit
// entities with {"action":"set","uid":539,"key":"value","value":"On"}; a
// failed edit is answered with {"action":"error","error":"..."} to that
// client only.
package hub
