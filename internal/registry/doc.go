// Package registry holds the typed derived-variable functions available to
// a build.
//
// Functions are registered by modules at startup under fully-qualified
// names such as "time_components.hour_of_day". Each declares its parameter
// schema and default attributes, so that a configuration can be checked
// against the registry before any data is opened.
package registry
