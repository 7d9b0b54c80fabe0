// Package director implements the directed execution engine: it parses
// each transaction's directive, groups a batch into per-action buckets,
// invokes the configured callbacks, and maps every outcome to a reply
// slot at the item's original index. The reply array always has exactly
// one slot per inbound item, whatever goes wrong.
package director

import (
	"context"
	"fmt"
	"sync"

	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Engine is an immutable action table for one named transaction handler.
// It implements handler.TransactionProcessor.
type Engine struct {
	handlerName string
	actions     map[string]handler.Action
	logger      log.Logger
}

// New builds an engine, validating the action table up front: a mode
// without its matching callback is a configuration error here, never a
// silent per-item failure later.
func New(handlerName string, actions []handler.Action, logger log.Logger) (*Engine, error) {
	if handlerName == "" {
		return nil, fmt.Errorf("handler name must not be empty")
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("handler %q has no actions", handlerName)
	}

	table := make(map[string]handler.Action, len(actions))
	for _, act := range actions {
		if act.Name == "" {
			return nil, fmt.Errorf("handler %q: action name must not be empty", handlerName)
		}
		if _, dup := table[act.Name]; dup {
			return nil, fmt.Errorf("handler %q: duplicate action %q", handlerName, act.Name)
		}
		if act.Mode == "" {
			act.Mode = handler.ModeParallel
		}
		switch act.Mode {
		case handler.ModeParallel:
			if act.Run == nil {
				return nil, fmt.Errorf("handler %q: parallel action %q has no Run callback", handlerName, act.Name)
			}
		case handler.ModeBatch:
			if act.RunBatch == nil {
				return nil, fmt.Errorf("handler %q: batch action %q has no RunBatch callback", handlerName, act.Name)
			}
		default:
			return nil, fmt.Errorf("handler %q: action %q has unknown mode %q", handlerName, act.Name, act.Mode)
		}
		table[act.Name] = act
	}

	return &Engine{handlerName: handlerName, actions: table, logger: logger}, nil
}

// workItem tracks one surviving transaction through grouping and back to
// its reply slot.
type workItem struct {
	index int
	tx    *wire.Transaction
	dir   *directive
}

// ProcessTransactions runs one inbound batch through parse, group,
// invoke, and outcome mapping.
func (e *Engine) ProcessTransactions(ctx context.Context, txs []*wire.Transaction) []*wire.TransactionResult {
	results := make([]*wire.TransactionResult, len(txs))

	// Phase 1: parse directives and group by action. Items that fail
	// here get their error slot and never enter a bucket.
	buckets := make(map[string][]*workItem)
	for i, tx := range txs {
		if tx == nil || tx.Input == nil {
			results[i] = errResult("Missing input for transaction")
			continue
		}
		dir, err := parseDirective(tx.Input)
		if err != nil {
			results[i] = errResult(err.Error())
			continue
		}
		if _, known := e.actions[dir.action]; !known {
			results[i] = errResult(fmt.Sprintf("Invalid action '%s' for handler '%s'", dir.action, e.handlerName))
			continue
		}
		buckets[dir.action] = append(buckets[dir.action], &workItem{index: i, tx: tx, dir: dir})
	}

	// Phase 2 and 3: invoke each bucket and map outcomes into the reply
	// slots at the original indices.
	for name, items := range buckets {
		act := e.actions[name]
		e.logger.Debug("running action bucket",
			log.String("handler", e.handlerName),
			log.String("action", name),
			log.Int("items", len(items)))
		if act.Mode == handler.ModeBatch {
			e.runBatch(ctx, act, items, results)
		} else {
			e.runParallel(ctx, act, items, results)
		}
	}
	return results
}

// runParallel hands every item to the action's single-item callback
// concurrently. Each settlement is captured independently; one failing
// item never aborts its siblings.
func (e *Engine) runParallel(ctx context.Context, act handler.Action, items []*workItem, results []*wire.TransactionResult) {
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(it *workItem) {
			defer wg.Done()
			out, err := act.Run(ctx, it.tx)
			results[it.index] = buildResult(act.Name, it.dir, out, err)
		}(it)
	}
	wg.Wait()
}

// runBatch hands the whole bucket to the batch callback in one call. A
// callback error, or an outcome count that does not match the input
// count, puts the same error on every item and discards any partial
// outcomes.
func (e *Engine) runBatch(ctx context.Context, act handler.Action, items []*workItem, results []*wire.TransactionResult) {
	txs := make([]*wire.Transaction, len(items))
	for i, it := range items {
		txs[i] = it.tx
	}

	outs, err := act.RunBatch(ctx, txs)
	if err != nil {
		for _, it := range items {
			results[it.index] = errResult(err.Error())
		}
		return
	}
	if len(outs) != len(items) {
		msg := fmt.Sprintf("Batch action '%s' returned %d outcomes for %d transactions", act.Name, len(outs), len(items))
		for _, it := range items {
			results[it.index] = errResult(msg)
		}
		return
	}
	for i, it := range items {
		results[it.index] = buildResult(act.Name, it.dir, outs[i], nil)
	}
}

func errResult(msg string) *wire.TransactionResult {
	return &wire.TransactionResult{Error: msg}
}
