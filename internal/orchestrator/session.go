package orchestrator

import "context"

// session.go groups helpers for the in-flight analysis.

// attachAnalysis stores the cancel func of the running analysis.
func (o *Orchestrator) attachAnalysis(cancel context.CancelFunc) {
    o.mu.Lock()
    o.analysisCancel = cancel
    o.mu.Unlock()
}

// detachAnalysis clears the cancel func after the analysis finishes.
func (o *Orchestrator) detachAnalysis() {
    o.mu.Lock()
    if o.analysisCancel != nil {
        o.analysisCancel()
        o.analysisCancel = nil
    }
    o.mu.Unlock()
}
