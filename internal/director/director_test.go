package director

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/patch"
	"github.com/stagecraft/stagehand/pkg/wire"
)

func tx(id string, input map[string]any) *wire.Transaction {
	return &wire.Transaction{ID: id, Workflow: "wf", Stage: "work", Input: input}
}

func directedInput(action string) map[string]any {
	return map[string]any{
		"action":       action,
		"outputPath":   "/result",
		"nextStage":    "done",
		"failureStage": "failed",
	}
}

func mustEngine(t *testing.T, actions ...handler.Action) *Engine {
	t.Helper()
	e, err := New("payments", actions, log.NewNoop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewValidation(t *testing.T) {
	run := func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
		return handler.Waiting(), nil
	}
	tests := []struct {
		name    string
		handler string
		actions []handler.Action
		wantMsg string
	}{
		{"empty handler name", "", []handler.Action{{Name: "a", Run: run}}, "handler name must not be empty"},
		{"no actions", "payments", nil, "has no actions"},
		{"empty action name", "payments", []handler.Action{{Run: run}}, "action name must not be empty"},
		{"duplicate action", "payments", []handler.Action{{Name: "a", Run: run}, {Name: "a", Run: run}}, `duplicate action "a"`},
		{"parallel without Run", "payments", []handler.Action{{Name: "a"}}, "has no Run callback"},
		{"batch without RunBatch", "payments", []handler.Action{{Name: "a", Mode: handler.ModeBatch}}, "has no RunBatch callback"},
		{"unknown mode", "payments", []handler.Action{{Name: "a", Mode: "sideways", Run: run}}, `unknown mode "sideways"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.handler, tt.actions, log.NewNoop())
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("New err = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestProcessTransactionsReplyPerItem(t *testing.T) {
	// Every item gets one reply slot even when nothing survives parsing.
	e := mustEngine(t, handler.Action{
		Name: "charge",
		Run: func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
			return handler.Complete(nil), nil
		},
	})

	txs := []*wire.Transaction{
		tx("t1", nil),
		tx("t2", map[string]any{"nextStage": "done"}),
		tx("t3", map[string]any{"action": "refund"}),
	}
	results := e.ProcessTransactions(context.Background(), txs)
	if len(results) != len(txs) {
		t.Fatalf("got %d results, want %d", len(results), len(txs))
	}
	wantErrs := []string{
		"Missing input for transaction",
		"Missing required field 'action' in transaction input",
		"Invalid action 'refund' for handler 'payments'",
	}
	for i, want := range wantErrs {
		if results[i] == nil || results[i].Error != want {
			t.Errorf("results[%d] = %+v, want error %q", i, results[i], want)
		}
	}
}

func TestProcessTransactionsParallel(t *testing.T) {
	// Five items across two actions: outputs land at each item's output
	// path, failures take the failure stage, and slots keep their order.
	var mu sync.Mutex
	seen := map[string]bool{}

	e := mustEngine(t,
		handler.Action{
			Name: "charge",
			Run: func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
				mu.Lock()
				seen[tx.ID] = true
				mu.Unlock()
				switch tx.ID {
				case "t2":
					return handler.HardFailure(errors.New("card declined")), nil
				case "t4":
					o := handler.Complete(map[string]any{"amount": 42})
					o.Events = []wire.Event{{Name: "charged", Data: map[string]any{"tx": tx.ID}}}
					return o, nil
				default:
					return handler.Complete("ok"), nil
				}
			},
		},
		handler.Action{
			Name: "notify",
			Run: func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
				mu.Lock()
				seen[tx.ID] = true
				mu.Unlock()
				return handler.Waiting(), nil
			},
		},
	)

	txs := []*wire.Transaction{
		tx("t1", directedInput("charge")),
		tx("t2", directedInput("charge")),
		tx("t3", directedInput("notify")),
		tx("t4", directedInput("charge")),
		tx("t5", directedInput("charge")),
	}
	results := e.ProcessTransactions(context.Background(), txs)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if len(seen) != 5 {
		t.Errorf("callbacks saw %d transactions, want 5", len(seen))
	}

	if results[0].Stage != "done" || results[0].Error != "" {
		t.Errorf("t1 = %+v, want stage done", results[0])
	}
	wantPatch := patch.Patch{patch.Add("/result", "ok")}
	if !reflect.DeepEqual(results[0].Patch, []patch.Operation(wantPatch)) {
		t.Errorf("t1 patch = %+v, want %+v", results[0].Patch, wantPatch)
	}

	if results[1].Stage != "failed" {
		t.Errorf("t2 = %+v, want failure stage", results[1])
	}
	wantFailPatch := patch.Patch{patch.Add("/error", "card declined")}
	if !reflect.DeepEqual(results[1].Patch, []patch.Operation(wantFailPatch)) {
		t.Errorf("t2 patch = %+v, want %+v", results[1].Patch, wantFailPatch)
	}

	if results[2].Stage != "" || results[2].Error != "" || results[2].Patch != nil {
		t.Errorf("t3 = %+v, want an empty waiting reply", results[2])
	}

	if results[3].Stage != "done" || len(results[3].Events) != 1 || results[3].Events[0].Name != "charged" {
		t.Errorf("t4 = %+v, want stage done with charged event", results[3])
	}

	if results[4].Stage != "done" {
		t.Errorf("t5 = %+v, want stage done", results[4])
	}
}

func TestProcessTransactionsParallelFanOut(t *testing.T) {
	// Five items on one parallel action, each completing with its own
	// output and one event: five replies, each carrying exactly one
	// event and the output at the configured path.
	e := mustEngine(t, handler.Action{
		Name: "greet",
		Run: func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
			o := handler.Complete(map[string]any{"name": "Tester " + tx.ID})
			o.Events = []wire.Event{{Name: "greeted", Data: map[string]any{"tx": tx.ID}}}
			return o, nil
		},
	})

	var txs []*wire.Transaction
	for i := 1; i <= 5; i++ {
		txs = append(txs, tx(fmt.Sprintf("t%d", i), directedInput("greet")))
	}
	results := e.ProcessTransactions(context.Background(), txs)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, res := range results {
		if res.Error != "" || res.Stage != "done" {
			t.Errorf("results[%d] = %+v", i, res)
			continue
		}
		if len(res.Events) != 1 || res.Events[0].Name != "greeted" {
			t.Errorf("results[%d].Events = %+v", i, res.Events)
		}
		wantOut := map[string]any{"name": fmt.Sprintf("Tester t%d", i+1)}
		if len(res.Patch) != 1 || res.Patch[0].Path != "/result" || !reflect.DeepEqual(res.Patch[0].Value, wantOut) {
			t.Errorf("results[%d].Patch = %+v, want add %v at /result", i, res.Patch, wantOut)
		}
	}
}

func TestProcessTransactionsBatch(t *testing.T) {
	t.Run("ordered outcomes map back to slots", func(t *testing.T) {
		var got []string
		e := mustEngine(t, handler.Action{
			Name: "settle",
			Mode: handler.ModeBatch,
			RunBatch: func(ctx context.Context, txs []*wire.Transaction) ([]*handler.Outcome, error) {
				outs := make([]*handler.Outcome, len(txs))
				for i, tx := range txs {
					got = append(got, tx.ID)
					outs[i] = handler.Complete(fmt.Sprintf("settled-%s", tx.ID))
				}
				return outs, nil
			},
		})
		results := e.ProcessTransactions(context.Background(), []*wire.Transaction{
			tx("t1", directedInput("settle")),
			tx("t2", directedInput("settle")),
		})
		sort.Strings(got)
		if !reflect.DeepEqual(got, []string{"t1", "t2"}) {
			t.Errorf("batch saw %v", got)
		}
		for i, want := range []string{"settled-t1", "settled-t2"} {
			ops := results[i].Patch
			if len(ops) != 1 || ops[0].Value != want {
				t.Errorf("results[%d].Patch = %+v, want add %q", i, ops, want)
			}
		}
	})

	t.Run("callback error lands on every item", func(t *testing.T) {
		e := mustEngine(t, handler.Action{
			Name: "settle",
			Mode: handler.ModeBatch,
			RunBatch: func(ctx context.Context, txs []*wire.Transaction) ([]*handler.Outcome, error) {
				return nil, errors.New("ledger unavailable")
			},
		})
		results := e.ProcessTransactions(context.Background(), []*wire.Transaction{
			tx("t1", directedInput("settle")),
			tx("t2", directedInput("settle")),
		})
		for i, res := range results {
			if res.Error != "ledger unavailable" {
				t.Errorf("results[%d].Error = %q", i, res.Error)
			}
		}
	})

	t.Run("count mismatch discards partial outcomes", func(t *testing.T) {
		e := mustEngine(t, handler.Action{
			Name: "settle",
			Mode: handler.ModeBatch,
			RunBatch: func(ctx context.Context, txs []*wire.Transaction) ([]*handler.Outcome, error) {
				return []*handler.Outcome{handler.Complete("only one")}, nil
			},
		})
		results := e.ProcessTransactions(context.Background(), []*wire.Transaction{
			tx("t1", directedInput("settle")),
			tx("t2", directedInput("settle")),
		})
		want := "Batch action 'settle' returned 1 outcomes for 2 transactions"
		for i, res := range results {
			if res.Error != want || res.Patch != nil {
				t.Errorf("results[%d] = %+v, want bare error %q", i, res, want)
			}
		}
	})
}

func TestBuildResultOutcomes(t *testing.T) {
	dir := &directive{
		action:       "charge",
		outputPath:   "/result",
		nextStage:    "done",
		failureStage: "failed",
	}
	noStages := &directive{action: "charge", outputPath: "/result"}

	tests := []struct {
		name string
		dir  *directive
		o    *handler.Outcome
		err  error
		want *wire.TransactionResult
	}{
		{
			name: "callback error wins",
			dir:  dir,
			o:    handler.Complete("ignored"),
			err:  errors.New("boom"),
			want: &wire.TransactionResult{Error: "boom"},
		},
		{
			name: "nil outcome",
			dir:  dir,
			want: &wire.TransactionResult{Error: "Action 'charge' returned no outcome"},
		},
		{
			name: "complete with stage override",
			dir:  dir,
			o:    &handler.Outcome{Status: handler.StatusComplete, Stage: "review"},
			want: &wire.TransactionResult{Stage: "review"},
		},
		{
			name: "complete without any next stage",
			dir:  noStages,
			o:    handler.Complete(nil),
			want: &wire.TransactionResult{Error: "Action 'charge' completed but no next stage is configured"},
		},
		{
			name: "complete keeps caller updates after output",
			dir:  dir,
			o: &handler.Outcome{
				Status:  handler.StatusComplete,
				Output:  "ok",
				Updates: patch.Patch{patch.Remove("/input/cursor")},
			},
			want: &wire.TransactionResult{
				Stage: "done",
				Patch: []patch.Operation{patch.Add("/result", "ok"), patch.Remove("/input/cursor")},
			},
		},
		{
			name: "output without output path degrades but keeps updates",
			dir:  &directive{action: "charge", nextStage: "done"},
			o: &handler.Outcome{
				Status:  handler.StatusComplete,
				Output:  "orphaned",
				Updates: patch.Patch{patch.Remove("/input/cursor")},
			},
			want: &wire.TransactionResult{
				Error: "Action 'charge' produced output but no output path is configured",
				Patch: []patch.Operation{patch.Remove("/input/cursor")},
			},
		},
		{
			name: "hard failure records cause in state",
			dir:  dir,
			o:    handler.HardFailure(errors.New("card declined")),
			want: &wire.TransactionResult{
				Stage: "failed",
				Patch: []patch.Operation{patch.Add("/error", "card declined")},
			},
		},
		{
			name: "hard failure without failure stage degrades to error",
			dir:  noStages,
			o:    handler.HardFailure(errors.New("card declined")),
			want: &wire.TransactionResult{Error: "card declined"},
		},
		{
			name: "hard failure without cause or stage uses fallback text",
			dir:  noStages,
			o:    &handler.Outcome{Status: handler.StatusHardFailure},
			want: &wire.TransactionResult{Error: "action failed"},
		},
		{
			name: "waiting keeps the transaction in place",
			dir:  dir,
			o:    handler.Waiting(),
			want: &wire.TransactionResult{},
		},
		{
			name: "fixable error reports without stage change",
			dir:  dir,
			o:    handler.FixableError(errors.New("bad address")),
			want: &wire.TransactionResult{Error: "bad address"},
		},
		{
			name: "transient error falls back when no cause given",
			dir:  dir,
			o:    &handler.Outcome{Status: handler.StatusTransientError},
			want: &wire.TransactionResult{Error: "action reported an error"},
		},
		{
			name: "unknown status",
			dir:  dir,
			o:    &handler.Outcome{Status: "shrug"},
			want: &wire.TransactionResult{Error: "Action 'charge' returned unknown outcome status 'shrug'"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildResult("charge", tt.dir, tt.o, tt.err)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildResult = %+v, want %+v", got, tt.want)
			}
		})
	}
}
