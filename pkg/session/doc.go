// Package session runs the appliance side of one protocol connection.
//
// A Session moves through CONNECTED, HANDSHAKING, ACTIVE and CLOSED. On
// handshake it assigns a random session id and message id counter, sends
// POST /ei/initialValues and attaches itself to the appliance so that
// entity notifications reach the peer. Frames are then handled one at a
// time in arrival order: GET requests are answered from the appliance,
// POST /ro/values updates entities, and everything the appliance does not
// serve is answered with code 404.
//
// Every outgoing message is stamped under the session's send lock:
// missing version, sID and msgID are filled in, the msgID counter advancing
// once per stamped message, so msgIDs grow strictly in wire order.
package session
