// Package logging implements the gateway's logging system.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//	logging.Info("ConnectionManager", "connected upstream %s", spec.ID)
//	logging.Warn("Registry", "dropping duplicate exposed name %s", name)
//	logging.Error("Mediator", err, "facilitator verify failed")
//	logging.Audit(logging.AuditEvent{Action: "inbound_admission", Outcome: "challenge", Tool: "price"})
//
// # Subsystems
//
// Logs are tagged by subsystem so they can be filtered per component:
// ConnectionManager, UpstreamSession, Registry, Mediator, Facilitator,
// Gateway, ConfigLoader.
package logging
