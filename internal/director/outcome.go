package director

import (
	"fmt"

	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/patch"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// buildResult maps one callback settlement onto its reply slot: stage
// transition, state patch, error text, triggers, and events.
func buildResult(actionName string, dir *directive, o *handler.Outcome, err error) *wire.TransactionResult {
	if err != nil {
		return errResult(err.Error())
	}
	if o == nil {
		return errResult(fmt.Sprintf("Action '%s' returned no outcome", actionName))
	}

	res := &wire.TransactionResult{
		Triggers: o.Triggers,
		Events:   o.Events,
	}

	// Output becomes one add op at the directive's output path; any
	// caller-supplied updates always follow it, whatever the outcome
	// kind. Output with no path to store it at downgrades the whole item
	// to an error reply.
	var ops patch.Patch
	outputLost := false
	if o.Output != nil {
		if dir.outputPath == "" {
			res.Error = fmt.Sprintf("Action '%s' produced output but no output path is configured", actionName)
			outputLost = true
		} else {
			ops = append(ops, patch.Add(dir.outputPath, o.Output))
		}
	}
	ops = append(ops, o.Updates...)
	if len(ops) > 0 {
		res.Patch = ops
	}
	if outputLost {
		return res
	}

	switch o.Status {
	case handler.StatusComplete:
		stage := o.Stage
		if stage == "" {
			stage = dir.nextStage
		}
		if stage == "" {
			res.Error = fmt.Sprintf("Action '%s' completed but no next stage is configured", actionName)
			return res
		}
		res.Stage = stage

	case handler.StatusHardFailure:
		stage := o.Stage
		if stage == "" {
			stage = dir.failureStage
		}
		if stage == "" {
			// No failure stage to transition to: degrade to a bare error
			// reply.
			res.Error = outcomeError(o, "action failed")
			return res
		}
		res.Stage = stage
		if o.Err != nil {
			res.Patch = append(res.Patch, patch.Add("/error", o.Err.Error()))
		}

	case handler.StatusWaiting:
		// The transaction stays put: no stage, no error.

	case handler.StatusFixableError, handler.StatusTransientError:
		res.Error = outcomeError(o, "action reported an error")

	default:
		res.Error = fmt.Sprintf("Action '%s' returned unknown outcome status '%s'", actionName, o.Status)
	}
	return res
}

func outcomeError(o *handler.Outcome, fallback string) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return fallback
}
