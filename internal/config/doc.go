// Package config loads and resolves poller configuration.
//
// A configuration file has three parts:
//   - poller: defaults shared by every controller (durations in seconds,
//     logging level, inventory file, chunker and manager plugin blocks)
//   - service-directory: where service definitions live
//   - controllers: the controllers to create at startup, each with its own
//     argument overrides and an optional completion webhook
//
// Resolve merges a controller's Args over the poller section and the
// built-in defaults into an immutable ControllerConfig. Plugin blocks can be
// written as a single mapping or as a list:
//
//	poller:
//	  chunker:
//	    type: static
//	  manager:
//	    - type: static
//	      workers: 4
//
// Every option next to type and name is handed to the plugin factory, which
// decodes it with DecodeOptions.
//
// Validation problems are reported as a ConfigurationError listing every
// problem found, not only the first one.
package config
