package service

import "idPhoto/client/models"

// Observer is notified of session progress. Calls come from the goroutine
// running Submit, or from the clock for the return to idle.
type Observer interface {
	OnProgress(percent float64)
	OnStateChange(state models.SessionState)
	OnStatus(message string)
}

type NopObserver struct{}

func (NopObserver) OnProgress(float64)                {}
func (NopObserver) OnStateChange(models.SessionState) {}
func (NopObserver) OnStatus(string)                   {}
