// internal/workers/notifications/process-due/models.go
package processdue

// Trigger names what started a pass.
type Trigger string

const (
	TriggerHTTP   Trigger = "http"
	TriggerTicker Trigger = "ticker"
	TriggerCLI    Trigger = "cli"
)

// Summary reports one pass. Processed is always Sent + Failed; Skipped counts
// due jobs another worker claimed first; Reconciled counts stale claims
// resolved at the start of the pass.
type Summary struct {
	Processed  int `json:"processed"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Reconciled int `json:"reconciled"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

func (s *Summary) add(o outcome) {
	switch o {
	case outcomeSent:
		s.Sent++
		s.Processed++
	case outcomeFailed:
		s.Failed++
		s.Processed++
	default:
		s.Skipped++
	}
}
