// Package service runs the simulator: it owns the appliance endpoint, the
// admin hub and the currently loaded appliance, and replaces that appliance
// when a new description is uploaded.
//
// Loading follows a fixed order. The new appliance is built and its saved
// state applied before anything observable changes. The old appliance is
// then closed, which ends its sessions, and only after that is the new one
// published. A connection that arrives in between sees the closed appliance,
// fails to attach and ends; the client reconnects to the new one.
//
// Optional collaborators (snapshot store, history journal, metrics, mDNS
// advertiser) are wired when present in Config and skipped otherwise.
package service
