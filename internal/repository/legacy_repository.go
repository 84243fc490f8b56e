package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// LegacyRepository reads the legacy homeworks/submissions tables and drifted class strings for
// one-shot maintenance jobs. It is never used on the request path.
type LegacyRepository struct {
	db *sqlx.DB
}

// NewLegacyRepository constructs the repository.
func NewLegacyRepository(db *sqlx.DB) *LegacyRepository {
	return &LegacyRepository{db: db}
}

const legacyHomeworkSource = `
FROM homeworks lh
LEFT JOIN classes cl ON cl.name = lh.class_name
WHERE NOT EXISTS (SELECT 1 FROM homework h WHERE h.id = lh.id)`

// the earliest legacy submission per pair wins; pairs already consolidated are skipped
const legacySubmissionSource = `
FROM submissions ls
WHERE EXISTS (SELECT 1 FROM homework h WHERE h.id = ls.homework_id)
AND NOT EXISTS (
	SELECT 1 FROM homework_submissions hs
	WHERE hs.homework_id = ls.homework_id AND hs.child_id = ls.child_id
)
AND NOT EXISTS (
	SELECT 1 FROM submissions e
	WHERE e.homework_id = ls.homework_id AND e.child_id = ls.child_id
	AND (e.submitted_at < ls.submitted_at OR (e.submitted_at = ls.submitted_at AND e.id < ls.id))
)`

// CountLegacyHomework returns legacy homework rows not yet consolidated.
func (r *LegacyRepository) CountLegacyHomework(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*)`+legacyHomeworkSource); err != nil {
		return 0, fmt.Errorf("count legacy homework: %w", err)
	}
	return count, nil
}

// CountLegacySubmissions returns legacy submissions that would be consolidated.
func (r *LegacyRepository) CountLegacySubmissions(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*)`+legacySubmissionSource); err != nil {
		return 0, fmt.Errorf("count legacy submissions: %w", err)
	}
	return count, nil
}

// MigrateHomework copies legacy homework into the consolidated table as class-wide homework.
func (r *LegacyRepository) MigrateHomework(ctx context.Context) (int64, error) {
	query := `INSERT INTO homework
	(id, title, description, due_date, teacher_id, class_id, assignment_type, content_type, status, created_at, updated_at)
SELECT lh.id, lh.title, COALESCE(lh.instructions, ''), lh.due_date, lh.teacher_id, COALESCE(lh.class_id, cl.id),
	'class', 'traditional', 'active', lh.created_at, lh.created_at` + legacyHomeworkSource
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("migrate legacy homework: %w", err)
	}
	return res.RowsAffected()
}

// MigrateSubmissions copies legacy submissions into homework_submissions.
func (r *LegacyRepository) MigrateSubmissions(ctx context.Context) (int64, error) {
	query := `INSERT INTO homework_submissions
	(id, homework_id, child_id, parent_id, file_url, answer_text, status, grade, feedback, submitted_at)
SELECT ls.id, ls.homework_id, ls.child_id, ls.parent_id, ls.file_path, ls.content,
	CASE WHEN ls.grade IS NULL THEN 'submitted' ELSE 'graded' END,
	ls.grade, ls.feedback, ls.submitted_at` + legacySubmissionSource
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("migrate legacy submissions: %w", err)
	}
	return res.RowsAffected()
}

// ClassNameUsage is a class string still present on children or staff that is either unlinked
// or disagrees with its linked class.
type ClassNameUsage struct {
	Table   string `db:"table_name"`
	RawName string `db:"raw_name"`
	Rows    int64  `db:"row_count"`
}

// ListDriftedClassNames returns class strings that need normalization.
func (r *LegacyRepository) ListDriftedClassNames(ctx context.Context) ([]ClassNameUsage, error) {
	const query = `
SELECT 'children' AS table_name, c.class_name AS raw_name, COUNT(*) AS row_count
FROM children c
LEFT JOIN classes cl ON cl.id = c.class_id
WHERE c.class_name IS NOT NULL AND (cl.id IS NULL OR cl.name <> c.class_name)
GROUP BY c.class_name
UNION ALL
SELECT 'staff' AS table_name, s.class_name AS raw_name, COUNT(*) AS row_count
FROM staff s
LEFT JOIN classes cl ON cl.id = s.class_id
WHERE s.class_name IS NOT NULL AND (cl.id IS NULL OR cl.name <> s.class_name)
GROUP BY s.class_name
ORDER BY table_name, raw_name`
	var usages []ClassNameUsage
	if err := r.db.SelectContext(ctx, &usages, query); err != nil {
		return nil, fmt.Errorf("list drifted class names: %w", err)
	}
	return usages, nil
}

// ApplyClassName links every row carrying rawName to the canonical class and mirrors its name.
func (r *LegacyRepository) ApplyClassName(ctx context.Context, table, rawName, classID, canonicalName string) (int64, error) {
	switch table {
	case "children", "staff":
	default:
		return 0, fmt.Errorf("unsupported table %q", table)
	}
	query := r.db.Rebind(`UPDATE ` + table + ` SET class_id = ?, class_name = ? WHERE class_name = ?`)
	res, err := r.db.ExecContext(ctx, query, classID, canonicalName, rawName)
	if err != nil {
		return 0, fmt.Errorf("normalize %s class %q: %w", table, rawName, err)
	}
	return res.RowsAffected()
}
