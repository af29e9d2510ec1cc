// Package tab is a typed client for the Tabcorp wagering API built on the
// resilience layer. It covers OAuth token acquisition, the racing and sports
// information endpoints, FootyTAB rounds, and generic passthrough calls for
// anything not wrapped explicitly.
package tab
