// Package tracegate provides in-process, purpose-bound policy enforcement for
// Go agents. A Client is one trace: every wrapped tool call is evaluated
// against the denylist, purpose rules and the risk the trace has accumulated
// so far, then allowed, redacted, rewritten, held for approval, or denied.
//
// Usage:
//
//	tg, err := tracegate.New(tracegate.WithPurpose("SOC_efficiency"))
//	defer tg.Close()
//	readHR := tg.Wrap(func(ctx context.Context, a tracegate.Action) (any, error) {
//	    return hrClient.Fetch(ctx, a.Resource)
//	})
//	rows, err := readHR(ctx, tracegate.Action{
//	    Tool:     "hr_api",
//	    Resource: "hr/employees",
//	    Meta:     map[string]any{"sensitivity": "high", "tags": []any{"HR"}},
//	})
//
// External users import github.com/ppiankov/tracegate/sdk/go/tracegate.
package tracegate
