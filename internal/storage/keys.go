package storage

// Storage keys. Each is independently readable, writable, and watchable.
const (
	KeyCards             = "cards"
	KeyNotes             = "notes"
	KeySettings          = "settings"
	KeyStats             = "stats"
	KeyGithubPAT         = "github_pat"
	KeyGistID            = "gist_id"
	KeyGistSyncEnabled   = "gist_sync_enabled"
	KeyLastSyncTime      = "last_sync_time"
	KeyLastSyncDirection = "last_sync_direction"
	KeyDataUpdatedAt     = "data_updated_at"
	KeySchemaVersion     = "schema_version"
	KeyMirrorChecksum    = "last_mirror_checksum"
)
