// Package events defines the lifecycle notifications emitted on the event
// bus by the dispatch engine and the crime generator.
//
// Available event types:
//   - CallAdded, CallCompleted, CallEscalated: call lifecycle
//   - UnitAssigned, UnitArrived, UnitRemoved, UnitStatusChanged: unit lifecycle
//   - PlayerCallOffered, PlayerCallAccepted, PlayerCallDeclined,
//     PlayerCallCompleted: player decisions
//   - CrimeLevelChanged, TimePeriodChanged, GeneratorFault: generator state
package events
