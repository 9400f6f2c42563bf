package verdict

import (
	"fmt"
	"strings"

	"github.com/clustercheck/clustercheck/pkg/aggregate"
)

const (
	MessageNoNodes     = "No nodes reporting the check"
	MessageAllSilenced = "All nodes silenced"
)

// Policy holds the alerting thresholds of an aggregate check.
type Policy struct {
	// CriticalPercent is the minimum OK percentage, 0 to 100, below which the
	// verdict is critical.
	CriticalPercent int
	// IncludeSilenced keeps silenced nodes in the denominator.
	IncludeSilenced bool
}

// Verdict is the outcome of Decide.
type Verdict struct {
	Status         Status
	Message        string
	OKPercent      int
	EffectiveTotal int
}

// Decide classifies a summary against a policy. It performs no I/O.
func Decide(summary aggregate.Summary, policy Policy) Verdict {
	if summary.Total == 0 {
		return Verdict{Status: StatusOK, Message: MessageNoNodes}
	}

	effective := summary.Total
	if !policy.IncludeSilenced {
		effective -= summary.Silenced
	}
	if effective <= 0 {
		return Verdict{Status: StatusOK, Message: MessageAllSilenced}
	}

	okPct := 100 * summary.OK / effective

	var b strings.Builder
	fmt.Fprintf(&b, "%d OK out of %d total.", summary.OK, effective)
	if policy.IncludeSilenced && summary.Silenced > 0 {
		fmt.Fprintf(&b, " %d silenced.", summary.Silenced)
	}
	fmt.Fprintf(&b, " (%d%% OK, %d%% threshold)", okPct, policy.CriticalPercent)

	status := StatusCritical
	if okPct >= policy.CriticalPercent {
		status = StatusOK
	}

	return Verdict{
		Status:         status,
		Message:        b.String(),
		OKPercent:      okPct,
		EffectiveTotal: effective,
	}
}
