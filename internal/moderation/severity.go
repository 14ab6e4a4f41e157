package moderation

// Severity ranks how serious an infraction category is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeveritySevere:
		return 1
	default:
		return 0
	}
}

// Escalates reports whether an infraction of this severity costs the sender
// a strike.
func (s Severity) Escalates() bool {
	return s == SeveritySevere || s == SeverityCritical
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityWarning, SeveritySevere, SeverityCritical:
		return true
	}
	return false
}

// Aggregate reduces a list of infractions to a block decision and the highest
// severity among them. With no infractions the message is not blocked and the
// severity defaults to warning.
func Aggregate(infractions []Infraction) (bool, Severity) {
	severity := SeverityWarning
	for _, inf := range infractions {
		if inf.Severity.rank() > severity.rank() {
			severity = inf.Severity
		}
	}
	return len(infractions) > 0, severity
}
