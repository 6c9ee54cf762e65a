// Package discovery advertises the simulated appliance over mDNS/DNS-SD.
//
// Real appliances announce themselves as _homeconnect._tcp with an instance
// name of the form <brand>-<vib>-<haId> and TXT records
//
//	brand  manufacturer, e.g. BOSCH
//	type   appliance type, e.g. Dishwasher
//	vib    model number
//	haId   appliance id (the description's deviceID)
//
// Clients that locate appliances by browsing find the simulator the same way.
package discovery
