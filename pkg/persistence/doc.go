// Package persistence stores the simulator snapshot: the loaded device
// description, its pre-shared key, service versions and entity state, so a
// restarted simulator comes back with the same appliance.
package persistence
