package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldRunID       = "run_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldReason      = "reason"
	FieldToday       = "today"
	FieldHorizonDays = "horizon_days"
	FieldPoints      = "points"
	FieldDriftPerDay = "drift_per_day"
	FieldOccurrences = "occurrences"
	FieldSkipped     = "skipped"
	FieldBalance     = "balance"
	FieldVersion     = "ledger_version"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentForecast  = "forecast"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentScheduler = "scheduler"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpProject  = "project"
	OpRefresh  = "refresh"
	OpImport   = "import"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithForecast adds the headline numbers of a projection run.
func (f LogFields) WithForecast(today string, horizonDays, points, occurrences, skipped int, driftPerDay string) LogFields {
	f[FieldToday] = today
	f[FieldHorizonDays] = horizonDays
	f[FieldPoints] = points
	f[FieldOccurrences] = occurrences
	f[FieldSkipped] = skipped
	f[FieldDriftPerDay] = driftPerDay
	return f
}

func (f LogFields) WithHTTPResponse(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
