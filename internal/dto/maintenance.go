package dto

// RepairRequest toggles dry-run for repair jobs.
type RepairRequest struct {
	DryRun bool `json:"dryRun"`
}

// HomeworkClassFix describes the class chosen for a homework missing one.
type HomeworkClassFix struct {
	HomeworkID string `json:"homeworkId"`
	Title      string `json:"title"`
	ClassID    string `json:"classId"`
	Source     string `json:"source"`
}

// RepairHomeworkClassesResult summarises a repair run.
type RepairHomeworkClassesResult struct {
	DryRun     bool               `json:"dryRun"`
	Scanned    int                `json:"scanned"`
	Repaired   []HomeworkClassFix `json:"repaired"`
	Unresolved []string           `json:"unresolved"`
}

// LegacyMigrationResult summarises a legacy table consolidation.
type LegacyMigrationResult struct {
	DryRun               bool  `json:"dryRun"`
	HomeworkCandidates   int64 `json:"homeworkCandidates"`
	HomeworkMigrated     int64 `json:"homeworkMigrated"`
	SubmissionCandidates int64 `json:"submissionCandidates"`
	SubmissionsMigrated  int64 `json:"submissionsMigrated"`
}

// ClassNameFix records one drifted class string mapped to a canonical class.
type ClassNameFix struct {
	Table     string `json:"table"`
	RawName   string `json:"rawName"`
	ClassID   string `json:"classId"`
	ClassName string `json:"className"`
	Rows      int64  `json:"rows"`
}

// NormalizeClassNamesResult summarises the class-name normalization job.
type NormalizeClassNamesResult struct {
	DryRun     bool           `json:"dryRun"`
	Fixes      []ClassNameFix `json:"fixes"`
	Unresolved []string       `json:"unresolved"`
}
