package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/analysis"
	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/workflow"
)

const validDocument = `{
  "version": "1",
  "workflow": {
    "mco": {
      "id": "wfmanager.builtin.mco.random_search",
      "model_data": {
        "parameters": [{"id": "range", "model_data": {"name": "x", "type": "NUMBER"}}],
        "kpis": [{"name": "y", "objective": "MINIMISE"}]
      }
    },
    "execution_layers": [
      [{"id": "wfmanager.builtin.data_source.scale",
        "model_data": {"factor": 2,
                       "input_slot_info": [{"name": "x"}],
                       "output_slot_info": [{"name": "y"}]}}]
    ],
    "notification_listeners": []
  }
}`

func writeWorkflow(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wfmanager version "+Version+"\n", out)
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  error
		contains []string
	}{
		{
			name:     "valid",
			content:  validDocument,
			contains: []string{"Workflow (workflow)\n", "  Layer 1 (execution_layer)\n", "workflow is valid"},
		},
		{
			name:    "undefined kpi",
			content: strings.Replace(validDocument, `"name": "y", "objective"`, `"name": "z", "objective"`, 1),
			wantErr: errWorkflowInvalid,
			contains: []string{
				"Workflow (workflow) [!]",
				"workflow is invalid:",
				"! ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "validate", writeWorkflow(t, "wf.json", tt.content))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, exitInvalid, exitCode(err))
			} else {
				assert.NoError(t, err)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestValidateCommand_LoadErrors(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errWorkflowInvalid)

	_, err = execute(t, "validate", writeWorkflow(t, "wf.json", `{"version": "2"}`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "validate", writeWorkflow(t, "wf.json", validDocument))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestWatchFile(t *testing.T) {
	path := writeWorkflow(t, "wf.json", validDocument)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, 20*time.Millisecond, setupLogger(io.Discard, "error", "text"), func() {
			calls.Add(1)
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(validDocument), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchFile did not return after cancel")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Deliver(_ context.Context, ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func simulationMCO() *workflow.MCOModel {
	mco := workflow.NewMCOModel("mco")
	mco.AddParameter(workflow.NewParameter("range", "x", "NUMBER"))
	mco.AddKPI(workflow.NewKPISpecification("y", workflow.Minimise))
	mco.AddKPI(workflow.NewKPISpecification("z", workflow.Maximise))
	return mco
}

func TestRunSimulation(t *testing.T) {
	rec := &recorder{}
	runSimulation(context.Background(), simulationMCO(), rec, 3, time.Millisecond)

	require.Len(t, rec.events, 5)
	start, ok := rec.events[0].(*event.StartEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, start.ParameterNames)
	assert.Equal(t, []string{"y", "z"}, start.KPINames)

	for _, ev := range rec.events[1:4] {
		progress, ok := ev.(*event.ProgressEvent)
		require.True(t, ok)
		require.Len(t, progress.OptimalPoint, 1)
		assert.Equal(t, "x", progress.OptimalPoint[0].Name)
		require.Len(t, progress.OptimalKPIs, 2)
		assert.InDelta(t, 1.0, progress.Weights[0]+progress.Weights[1], 1e-9)
	}
	assert.IsType(t, &event.FinishEvent{}, rec.events[4])
}

func TestRunSimulation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	runSimulation(ctx, simulationMCO(), rec, 100, time.Hour)

	require.Len(t, rec.events, 1)
	assert.IsType(t, &event.StartEvent{}, rec.events[0])
}

func TestResultPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &resultPrinter{w: &out}
	m := analysis.NewModel()

	events := []event.Event{
		&event.StartEvent{ParameterNames: []string{"x"}, KPINames: []string{"y"}},
		&event.ProgressEvent{
			OptimalPoint: []event.DataValue{{Type: "NUMBER", Value: 1.5, Name: "x"}},
			OptimalKPIs:  []event.DataValue{{Type: "NUMBER", Value: 3.0, Name: "y"}},
			Weights:      []float64{1},
		},
		&event.FinishEvent{},
	}
	for _, ev := range events {
		require.NoError(t, m.Apply(ev))
		p.apply(m, ev)
	}

	assert.Equal(t, "run started\nstep\tx\ty\n1\t1.5\t3\nrun finished: 1 point(s)\n", out.String())
}
