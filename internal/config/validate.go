package config

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding, addressed by a config path like
// "storage.dsn".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks a pipeline config and returns all findings. The config is
// usable when no issue has SeverityError.
func Validate(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	}
	warnf := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityWarn, Path: path, Message: msg})
	}

	if p.Source.SongData == "" {
		errf("source.song_data", "song data root directory is required")
	}
	if p.Source.LogData == "" {
		errf("source.log_data", "log data root directory is required")
	}
	if p.Source.Extension != "" && p.Source.Extension[0] != '.' {
		warnf("source.extension", "extension should start with a dot (e.g. \".json\")")
	}
	if p.Storage.Kind == "" {
		errf("storage.kind", "storage backend kind is required (postgres, sqlite, sqlserver)")
	}
	if p.Storage.DSN == "" {
		errf("storage.dsn", "storage DSN is required")
	}
	if p.Job == "" {
		warnf("job", "job name is empty; metrics will use the default job tag")
	}

	return issues
}
