package executors

import (
	"net/http"

	"github.com/rendis/conduit/internal/approval"
	"github.com/rendis/conduit/internal/expressions"
)

// BuiltinDeps carries the external collaborators the built-in executors need.
// Nil fields fall back to safe defaults (log messenger, empty corpus, nil
// model — ai nodes then fail in isolation).
type BuiltinDeps struct {
	Gate       *approval.Gate
	Model      ModelClient
	Messenger  Messenger
	Corpus     Corpus
	HTTPClient *http.Client
}

// RegisterBuiltins wires every built-in executor into the registry.
// The expr engine is shared across condition and action nodes so compiled
// programs are cached once.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	exprEngine := expressions.NewExprEngine()
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	all := []Executor{
		NewTriggerExecutor(),
		NewConditionExecutor(exprEngine, celEngine),
		NewAIExecutor(deps.Model),
		NewActionExecutor(exprEngine),
		NewFetchExecutor(deps.HTTPClient),
		NewParseExecutor(expressions.NewGoJQEngine()),
		NewNotifyExecutor(deps.Messenger),
		NewRetrievalExecutor(deps.Corpus),
		NewAdaptationExecutor(),
	}
	if deps.Gate != nil {
		all = append(all, NewApprovalExecutor(deps.Gate))
	}

	for _, exec := range all {
		if err := reg.Register(exec); err != nil {
			return err
		}
	}
	return nil
}
