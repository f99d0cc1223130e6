// Package notification relays run events from an optimiser to the workflow
// manager over two channels: a publish channel carrying MESSAGE frames and a
// request/reply sync channel carrying the HELLO and GOODBYE handshakes.
//
// The receiving Server is a small state machine:
//
//	Stopped --Start--> Waiting --HELLO--> Receiving --GOODBYE--> Waiting
//	   ^                                                            |
//	   +-------------------------- Stop (any state) ----------------+
//
// Handshake frames are acknowledged by echoing them verbatim. Messages
// published while the server is waiting are discarded, never buffered.
//
// The run side is a Listener. It never fails the run: a missing or
// mismatched echo puts it in degraded mode and later deliveries are skipped.
//
// HookManager attaches the listener model to the workflow before a run and
// removes it afterwards.
package notification
