// Package model implements the simulated appliance state model.
//
// # Appliance Model
//
// An Appliance owns a flat set of Entities built from a device description:
//
//	Appliance (SIEMENS SR63EX28KE)
//	├── Status   (e.g. BSH.Common.Status.DoorState)
//	├── Setting  (e.g. BSH.Common.Setting.PowerState)
//	├── Event    (e.g. BSH.Common.Event.ProgramFinished)
//	├── Command, Option, Program
//	└── ActiveProgram / SelectedProgram / ProtectionPort (singletons)
//
// Entities are addressed by uid on the wire and by name in the admin
// console. Both are unique within an appliance.
//
// # Capabilities
//
// Each Kind carries a fixed capability set:
//   - Access: access level (none, read, readwrite, writeonly, readstatic)
//   - Available: availability flag
//   - Range: min, max and step, typed like the value
//
// Capabilities are merged in the order access, available, range for Dump,
// DescriptionChanges and SetState.
//
// # Mutation Paths
//
// Three operations change an entity's value:
//   - SetValueRaw: compare-and-set, broadcasts only on change
//   - Update: protocol push, always stores and broadcasts, then notifies
//     subscribers asynchronously
//   - SetState: admin edit of capabilities and value, broadcasts one
//     description change for all changed capabilities
//
// Broadcasts go through the Broadcaster the entity was built with, which is
// the owning Appliance.
package model
