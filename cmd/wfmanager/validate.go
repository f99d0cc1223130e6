package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/modelview"
	"github.com/force-h2020/wfmanager/pluginregistry"
	"github.com/force-h2020/wfmanager/workflow"
	"github.com/force-h2020/wfmanager/workflowtree"
)

// errWorkflowInvalid is returned when verification found issues. The issues
// themselves have already been printed.
var errWorkflowInvalid = stderrors.New("workflow is invalid")

func newValidateCmd(a *app) *cobra.Command {
	var watch, fromKV bool

	cmd := &cobra.Command{
		Use:   "validate <file|name>",
		Short: "Verify a workflow and print its tree with error text",
		Long: `Verify a workflow document and print every node of the workflow tree
together with the errors attached to it. The exit status is 3 when the
workflow cannot be run.

With --kv the argument names a workflow in the NATS KV store instead of a
file. With --watch the file is verified again every time it is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch {
			case fromKV:
				return a.validateStored(ctx, args[0])
			case watch:
				return a.watchWorkflow(ctx, args[0])
			default:
				return a.validateFile(args[0])
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "verify again whenever the file changes")
	cmd.Flags().BoolVar(&fromKV, "kv", false, "load the workflow from the NATS KV store")
	cmd.MarkFlagsMutuallyExclusive("watch", "kv")
	return cmd
}

func (a *app) validateFile(path string) error {
	wf, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}
	return a.verify(wf)
}

func (a *app) validateStored(ctx context.Context, name string) error {
	client, err := a.connectNATS(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.WithoutCancel(ctx)) }()

	store, err := workflow.OpenStore(ctx, client, a.cfg.Store.Bucket)
	if err != nil {
		return err
	}
	wf, rev, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	a.logger.Debug("Loaded workflow from store", "name", name, "revision", rev)
	return a.verify(wf)
}

func (a *app) watchWorkflow(ctx context.Context, path string) error {
	check := func() {
		_, _ = fmt.Fprintf(a.out, "--- %s\n", path)
		if err := a.validateFile(path); err != nil && !stderrors.Is(err, errWorkflowInvalid) {
			// A half-written file is expected while editing.
			_, _ = fmt.Fprintf(a.out, "cannot load workflow: %v\n", err)
		}
	}
	check()
	return watchFile(ctx, path, watchDebounce, a.logger, check)
}

// verify builds the workflow tree for wf and prints it. Structural errors
// (corrupted slot tables, plugin failures) are returned as such.
func (a *app) verify(wf *workflow.Workflow) error {
	registry, err := pluginregistry.NewDefault()
	if err != nil {
		return err
	}

	tree, err := workflowtree.New(wf, registry,
		workflowtree.WithLogger(a.logger),
		workflowtree.WithMetrics(a.metrics.CoreMetrics()))
	if err != nil {
		return errors.Wrap(err, "wfmanager", "verify", "build workflow tree")
	}
	defer tree.Close()

	printReport(a.out, tree)
	if !tree.Valid() {
		return errWorkflowInvalid
	}
	return nil
}

// printReport writes the tree, then a summary line.
func printReport(w io.Writer, tree *workflowtree.WorkflowTree) {
	printNode(w, tree.Root(), 0)

	errs := tree.Errors()
	if len(errs) == 0 {
		_, _ = fmt.Fprintln(w, "workflow is valid")
		return
	}
	_, _ = fmt.Fprintf(w, "workflow is invalid: %d error(s)\n", len(errs))
}

func printNode(w io.Writer, n modelview.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	mark := ""
	if !n.Valid() {
		mark = " [!]"
	}
	label := n.Label()
	if label == "" {
		label = "<unnamed>"
	}
	_, _ = fmt.Fprintf(w, "%s%s (%s)%s\n", indent, label, n.Kind(), mark)
	for _, msg := range n.Messages() {
		_, _ = fmt.Fprintf(w, "%s  ! %s\n", indent, msg)
	}
	for _, child := range n.Children() {
		printNode(w, child, depth+1)
	}
}
