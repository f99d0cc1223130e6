// Package errors classifies failures into three classes so callers can decide
// how to react without matching on strings:
//
//   - Transient: timeouts and lost connections; retry or degrade.
//   - Invalid: malformed input, unknown factories; report and do not retry.
//   - Fatal: corrupted slot bindings, plugin failures; abort the operation.
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// Wrap preserves the class of the wrapped error; WrapTransient, WrapInvalid and
// WrapFatal set it explicitly:
//
//	if err := view.Build(); err != nil {
//	    return errors.WrapFatal(err, "WorkflowTree", "Rebuild", "build data source view")
//	}
//
// Errors stay compatible with the standard library: errors.Is and errors.As
// work through every wrapper in this package.
//
// Validation problems a user can fix in the editor (an unbound slot, a KPI
// without a name) are not errors in this sense. They are collected as
// verifier issues and shown in the workflow tree.
package errors
