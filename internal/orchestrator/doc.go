// Package orchestrator manages the controllers running in one poller
// process.
//
// Each controller is wrapped with an integer id, a name and lifecycle
// metadata. The orchestrator is the only owner of the id and name indices.
//
// # Lifecycle
//
//	created --Start--> running --Stop / run ends--> stopped --Start--> running
//	   any state --Delete--> deleted
//
// A run ends on its own in single-run mode, or when a fatal error stops the
// controller. Either way the controller moves to stopped, the stop time and
// the error are recorded, and the completion callback passed to Start is
// called once with the final metadata.
//
// # Identifiers
//
// Ids start at 0. Deleting a controller releases its id, and the most
// recently released id is reused first:
//
//	a, _ := o.Create(args, cfg, "a") // id 0
//	b, _ := o.Create(args, cfg, "b") // id 1
//	o.Delete(ctx, a.ID)
//	c, _ := o.Create(args, cfg, "c") // id 0
//
// Names default to "controller-<id>". Creating a controller with a name in
// use moves the name to the new controller.
//
// # Updates
//
// Update rebuilds a controller from new arguments applied on top of its
// current effective configuration, so settings not named in the update are
// kept. A running controller is stopped, rebuilt and started again. The
// restarted run reports to the callback passed to Update, or to the previous
// one when none is given.
//
// # Metadata
//
// Every read returns a Metadata snapshot. Snapshots are copies with secret
// plugin options masked; changing one has no effect on the controller.
package orchestrator
