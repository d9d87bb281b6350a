// Package exitcodes defines the standard exit codes used by op-remote.
package exitcodes

// Exit code constants used by op-remote run:
//
// * Success (0): the remote run finished and no test failed
// * TestFailure (1): one or more remote tests failed
// * RuntimeErr (2): the run could not be completed, e.g. bad configuration or an unreachable server
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
