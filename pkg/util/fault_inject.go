package util

import (
	"sync"
	"sync/atomic"
)

// FaultScope groups fault points that tests switch on together.
type FaultScope int

const (
	FaultScopeDedup FaultScope = iota
	FaultScopeCount
)

var faultScopes [FaultScopeCount]faults

type faults struct {
	enabled atomic.Bool
	actions sync.Map
}

func (scope FaultScope) get() *faults {
	if scope < 0 || scope >= FaultScopeCount {
		return nil
	}
	return &faultScopes[scope]
}

// FaultAction is a hook registered by tests to perturb a code path at a
// named point. Action receives the registered Args followed by the values
// the fault point passes in.
type FaultAction struct {
	Args   []string
	Action func([]string) error
	hits   atomic.Int64
}

func (fa *FaultAction) Run(callArgs ...string) error {
	if fa == nil || fa.Action == nil {
		return nil
	}
	fa.hits.Add(1)
	args := make([]string, 0, len(fa.Args)+len(callArgs))
	args = append(args, fa.Args...)
	args = append(args, callArgs...)
	return fa.Action(args)
}

// Hits counts the runs of the action.
func (fa *FaultAction) Hits() int64 {
	if fa == nil {
		return 0
	}
	return fa.hits.Load()
}

func OpenFaults(scope FaultScope) {
	if f := scope.get(); f != nil {
		f.enabled.Store(true)
	}
}

func CloseFaults(scope FaultScope) {
	if f := scope.get(); f != nil {
		f.enabled.Store(false)
		f.actions.Clear()
	}
}

// FaultsEnabled lets fault points skip building their arguments.
func FaultsEnabled(scope FaultScope) bool {
	f := scope.get()
	return f != nil && f.enabled.Load()
}

// CheckFault returns the action registered under name, or nil when the
// scope is closed or nothing is registered.
func CheckFault(scope FaultScope, name string) *FaultAction {
	if !FaultsEnabled(scope) {
		return nil
	}
	val, ok := scope.get().actions.Load(name)
	if !ok {
		return nil
	}
	return val.(*FaultAction)
}

// InjectFault runs the action registered under name with callArgs.
func InjectFault(scope FaultScope, name string, callArgs ...string) error {
	return CheckFault(scope, name).Run(callArgs...)
}

// RegisterFault installs an action in an open scope and returns it.
func RegisterFault(scope FaultScope, name string, args []string, action func([]string) error) *FaultAction {
	if !FaultsEnabled(scope) {
		return nil
	}
	fa := &FaultAction{Args: args, Action: action}
	scope.get().actions.Store(name, fa)
	return fa
}
