// Package app wires the poller together: it loads the configuration file,
// builds the plugin registry and the orchestrator, and drives the controllers
// declared in the file for the run and validate commands.
//
// # Run
//
// Run creates every declared controller first, so an invalid declaration
// aborts before anything starts. It then starts them all, each with a
// completion callback that fires the controller's webhook when one is
// configured, and waits until every controller has finished or the context
// is cancelled. Running controllers are stopped through the orchestrator
// before the final controller table is written.
//
// When MetricsAddr is set the Prometheus registry shared by the controllers
// is served on /metrics for the lifetime of the run. Under systemd the
// service manager is notified once the controllers are started and again
// when shutdown begins.
//
// # Validate
//
// Validate builds and initializes every declared controller without running
// it, writes the resulting table and deletes the controllers again.
package app
