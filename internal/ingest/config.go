package ingest

// Config contains configuration options that control how Webflix
// detects newly arrived source material.
type Config struct {
	// Object keys beginning with this prefix are treated as bulk CSV
	// import documents rather than direct uploads.
	BulkPrefix string `yaml:"bulk_prefix" env:"INGEST_BULK_PREFIX" env-default:"imports/"`

	// An optional local directory to monitor for CSV documents. Useful
	// for operators that want to drop import files on the host rather
	// than pushing them to object storage.
	WatchPath string `yaml:"watch_path" env:"INGEST_WATCH_PATH"`
}
