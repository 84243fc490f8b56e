package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/preschool-homework-api/internal/dto"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/repository"
	appErrors "github.com/noah-isme/preschool-homework-api/pkg/errors"
)

type homeworkClassRepairer interface {
	ListMissingClass(ctx context.Context) ([]models.Homework, error)
	AssignedClassIDs(ctx context.Context, homeworkID string) ([]string, error)
	SetClass(ctx context.Context, homeworkID, classID string) (bool, error)
}

type legacyStore interface {
	CountLegacyHomework(ctx context.Context) (int64, error)
	CountLegacySubmissions(ctx context.Context) (int64, error)
	MigrateHomework(ctx context.Context) (int64, error)
	MigrateSubmissions(ctx context.Context) (int64, error)
	ListDriftedClassNames(ctx context.Context) ([]repository.ClassNameUsage, error)
	ApplyClassName(ctx context.Context, table, rawName, classID, canonicalName string) (int64, error)
}

type classLister interface {
	List(ctx context.Context) ([]models.Class, error)
}

// ClassAliases maps a canonical class name to the drifted spellings found in older data.
type ClassAliases map[string][]string

type aliasFile struct {
	Aliases ClassAliases `yaml:"aliases"`
}

// LoadClassAliases reads an alias file of the form:
//
//	aliases:
//	  Panda: ["Panda Class", "Pandas"]
func LoadClassAliases(r io.Reader) (ClassAliases, error) {
	var file aliasFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode class aliases: %w", err)
	}
	if file.Aliases == nil {
		return ClassAliases{}, nil
	}
	return file.Aliases, nil
}

// MaintenanceService runs one-off data repair jobs.
type MaintenanceService struct {
	homework homeworkClassRepairer
	staff    staffReader
	classes  classLister
	legacy   legacyStore
	logger   *zap.Logger
}

// NewMaintenanceService constructs the service.
func NewMaintenanceService(homework homeworkClassRepairer, staff staffReader, classes classLister, legacy legacyStore, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{homework: homework, staff: staff, classes: classes, legacy: legacy, logger: logger}
}

// RepairHomeworkClasses fills missing homework classes from the assigned children's single class,
// falling back to the author's class. Ambiguous rows are reported, never guessed.
func (s *MaintenanceService) RepairHomeworkClasses(ctx context.Context, dryRun bool) (*dto.RepairHomeworkClassesResult, error) {
	missing, err := s.homework.ListMissingClass(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list homework without class")
	}

	result := &dto.RepairHomeworkClassesResult{
		DryRun:     dryRun,
		Scanned:    len(missing),
		Repaired:   []dto.HomeworkClassFix{},
		Unresolved: []string{},
	}
	for _, hw := range missing {
		classID, source, err := s.inferClass(ctx, hw)
		if err != nil {
			return nil, err
		}
		if classID == "" {
			result.Unresolved = append(result.Unresolved, hw.ID)
			continue
		}
		if !dryRun {
			updated, err := s.homework.SetClass(ctx, hw.ID, classID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to repair homework class")
			}
			if !updated {
				continue
			}
		}
		result.Repaired = append(result.Repaired, dto.HomeworkClassFix{HomeworkID: hw.ID, Title: hw.Title, ClassID: classID, Source: source})
	}

	s.logger.Info("homework class repair finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", result.Scanned),
		zap.Int("repaired", len(result.Repaired)),
		zap.Int("unresolved", len(result.Unresolved)),
	)
	return result, nil
}

func (s *MaintenanceService) inferClass(ctx context.Context, hw models.Homework) (string, string, error) {
	if hw.AssignmentType == models.AssignmentIndividual {
		classIDs, err := s.homework.AssignedClassIDs(ctx, hw.ID)
		if err != nil {
			return "", "", appErrors.Internal(err, "failed to load assigned classes")
		}
		if len(classIDs) == 1 {
			return classIDs[0], "assigned_children", nil
		}
	}

	teacher, err := s.staff.FindByID(ctx, hw.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", appErrors.Internal(err, "failed to load teacher")
	}
	if teacher.ClassID != nil && *teacher.ClassID != "" {
		return *teacher.ClassID, "teacher", nil
	}
	return "", "", nil
}

// MigrateLegacy copies the legacy homeworks/submissions tables into the current schema. Pairs
// already present are skipped, so the job can be re-run.
func (s *MaintenanceService) MigrateLegacy(ctx context.Context, dryRun bool) (*dto.LegacyMigrationResult, error) {
	result := &dto.LegacyMigrationResult{DryRun: dryRun}

	var err error
	if result.HomeworkCandidates, err = s.legacy.CountLegacyHomework(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count legacy homework")
	}
	if result.SubmissionCandidates, err = s.legacy.CountLegacySubmissions(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count legacy submissions")
	}
	if dryRun {
		return result, nil
	}

	if result.HomeworkMigrated, err = s.legacy.MigrateHomework(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to migrate legacy homework")
	}
	if result.SubmissionsMigrated, err = s.legacy.MigrateSubmissions(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to migrate legacy submissions")
	}

	s.logger.Info("legacy migration finished",
		zap.Int64("homework", result.HomeworkMigrated),
		zap.Int64("submissions", result.SubmissionsMigrated),
	)
	return result, nil
}

// NormalizeClassNames links drifted class strings on children and staff to canonical classes.
func (s *MaintenanceService) NormalizeClassNames(ctx context.Context, aliases ClassAliases, dryRun bool) (*dto.NormalizeClassNamesResult, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list classes")
	}
	usages, err := s.legacy.ListDriftedClassNames(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list class names")
	}

	resolve := classResolver(classes, aliases)
	result := &dto.NormalizeClassNamesResult{DryRun: dryRun, Fixes: []dto.ClassNameFix{}, Unresolved: []string{}}
	for _, usage := range usages {
		class, ok := resolve(usage.RawName)
		if !ok {
			result.Unresolved = append(result.Unresolved, usage.Table+":"+usage.RawName)
			continue
		}
		fix := dto.ClassNameFix{Table: usage.Table, RawName: usage.RawName, ClassID: class.ID, ClassName: class.Name, Rows: usage.Rows}
		if !dryRun {
			if fix.Rows, err = s.legacy.ApplyClassName(ctx, usage.Table, usage.RawName, class.ID, class.Name); err != nil {
				return nil, appErrors.Internal(err, "failed to normalize class name")
			}
		}
		result.Fixes = append(result.Fixes, fix)
	}

	s.logger.Info("class name normalization finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("fixed", len(result.Fixes)),
		zap.Int("unresolved", len(result.Unresolved)),
	)
	return result, nil
}

// classResolver matches a raw class string case-insensitively against canonical names, then the
// alias table, then the name with a trailing "class" removed.
func classResolver(classes []models.Class, aliases ClassAliases) func(string) (models.Class, bool) {
	byName := make(map[string]models.Class, len(classes))
	for _, class := range classes {
		byName[normalizeClassKey(class.Name)] = class
	}
	byAlias := make(map[string]models.Class)
	for canonical, spellings := range aliases {
		class, ok := byName[normalizeClassKey(canonical)]
		if !ok {
			continue
		}
		for _, spelling := range spellings {
			byAlias[normalizeClassKey(spelling)] = class
		}
	}

	return func(raw string) (models.Class, bool) {
		key := normalizeClassKey(raw)
		if class, ok := byName[key]; ok {
			return class, true
		}
		if class, ok := byAlias[key]; ok {
			return class, true
		}
		if trimmed := strings.TrimSpace(strings.TrimSuffix(key, "class")); trimmed != key {
			class, ok := byName[trimmed]
			return class, ok
		}
		return models.Class{}, false
	}
}

func normalizeClassKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
