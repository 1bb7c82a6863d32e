package failure

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
)

// Install routes process-wide unhandled failures into the log: errors passed
// to utilruntime.HandleError and panics recovered by utilruntime.HandleCrash.
// Calling it twice is a no-op.
func (r *Reporter) Install() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installed {
		return
	}

	r.prevErrors = utilruntime.ErrorHandlers
	r.prevPanics = utilruntime.PanicHandlers

	utilruntime.ErrorHandlers = []utilruntime.ErrorHandler{r.onUnhandledError}
	utilruntime.PanicHandlers = append(slices.Clone(r.prevPanics), r.onPanic)
	r.installed = true
}

// Uninstall restores the handlers that were in place before Install.
func (r *Reporter) Uninstall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.installed {
		return
	}
	utilruntime.ErrorHandlers = r.prevErrors
	utilruntime.PanicHandlers = r.prevPanics
	r.prevErrors, r.prevPanics = nil, nil
	r.installed = false
}

func (r *Reporter) onUnhandledError(_ context.Context, err error, msg string, _ ...interface{}) {
	switch {
	case err == nil:
		err = errors.New(msg)
	case msg != "":
		err = fmt.Errorf("%s: %w", msg, err)
	}
	r.HandleRuntimeError(err, "")
}

func (r *Reporter) onPanic(_ context.Context, v interface{}) {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", v)
	}
	r.HandleRuntimeError(err, string(debug.Stack()))
}
