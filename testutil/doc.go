// Package testutil provides fakes and fixtures shared by the package tests.
//
// NewRegistry returns a factory registry populated with fake factories whose
// slot shapes are fixed or driven by configuration, plus one factory that
// always fails, for exercising plugin-failure paths.
//
// NewWorkflow is a small fixture builder:
//
//	wf := testutil.NewWorkflow().
//	    Parameter("x", testutil.TypeNumber).
//	    KPI("y").
//	    Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"y"})).
//	    Build()
//
// MemoryBus is an in-memory pub/sub and request/reply transport with the
// same method set as natsclient.Client, so the notification server and
// listener can be tested without a NATS server. Delivery is synchronous and
// ordered.
package testutil
