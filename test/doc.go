// Package test provides infrastructure and utilities for integration testing in shipyard.
//
// The test package implements a complete test environment that exercises the
// HTTP API, the services and the engine together while keeping job execution
// under the control of the test.
//
// The package provides:
//
//   - Suite: a struct that manages a complete test setup including a
//     file-based SQLite database, the real API server and a real API client
//
//   - GateRunner: a Runner that can hold executions until the test releases
//     them, so that jobs can be observed and cancelled while running
//
// Example Usage:
//
//	func TestExample(t *testing.T) {
//	    s := test.NewSuite(t)
//	    defer s.Cleanup()
//
//	    deployer := s.Client("alice", "deployer")
//	    // Use deployer to make requests
//	    s.Drain() // wait for dispatched executions
//	}
package test
