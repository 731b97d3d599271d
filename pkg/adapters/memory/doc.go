// Package memory provides in-process adapters: a StateStore for tests and
// ephemeral deployments, and a scripted MessageTransport.
package memory
