package verdict

// Status is a check-plugin classification.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

// String returns the upper-case plugin name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode maps the status to the standard check-plugin process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK, StatusWarning, StatusCritical:
		return int(s)
	default:
		return int(StatusUnknown)
	}
}
