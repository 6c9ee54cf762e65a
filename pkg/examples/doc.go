// Package examples bundles ready-made appliance descriptions so the
// simulator can start serving without an upload.
//
// Each example is a YAML file under appliances/ holding the device
// description together with its PSK and, optionally, service versions:
//
//	name: dishwasher
//	title: Dishwasher with two programs
//	psk: <url-safe base64 key>
//	description:
//	  info: {...}
//	  setting: [...]
//
// Load converts an example into the same Bundle an upload produces, so it
// passes the description schema like any uploaded file.
package examples
