// Package gitupdate keeps configured git repositories current: on a cron
// schedule it fetches, rebases with stash protection for local changes,
// and reports what happened through a notification callback.
package gitupdate

// Status values for a repo's last run and for update results.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusConflict = "conflict"
	StatusNoChange = "no_change"
	StatusUpdated  = "updated"
)

// RepoState is the persisted runtime state of one repo.
type RepoState struct {
	NextRunAtMs    *int64  `json:"nextRunAtMs"`
	LastRunAtMs    *int64  `json:"lastRunAtMs"`
	LastStatus     *string `json:"lastStatus"`
	LastError      *string `json:"lastError"`
	LastCommit     *string `json:"lastCommit"`
	UpdatesApplied int     `json:"updatesApplied"`
}

// Repo is a repository under automatic update.
type Repo struct {
	ID             string
	Path           string
	Branch         string
	Schedule       string
	Enabled        bool
	OnUpdate       []string
	OnConflict     []string
	NotifyOnChange bool
	State          RepoState
}

// UpdateResult describes one update attempt.
type UpdateResult struct {
	RepoID    string
	Path      string
	Status    string
	OldCommit string
	NewCommit string
	Err       string
	Changes   []string
}
