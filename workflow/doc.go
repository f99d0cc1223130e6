// Package workflow holds the persisted workflow model: the MCO with its
// parameters and KPIs, the ordered execution layers of data sources, and the
// notification listeners attached for a run.
//
// Models are mutated only through setters and structural mutators. Each
// mutation of a model attached to a Workflow is delivered synchronously to
// the workflow's subscribers as a Change, in subscription order:
//
//	unsubscribe := wf.Subscribe(func(c workflow.Change) {
//	    if c.Kind == workflow.ChangeParameterName {
//	        registry.Recompute()
//	    }
//	})
//	defer unsubscribe()
//
// Documents are read and written with Decode/Encode (JSON) or
// LoadFile/SaveFile (JSON or YAML by extension), and stored in NATS KV with
// Store.
package workflow
