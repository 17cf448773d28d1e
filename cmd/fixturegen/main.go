// fixturegen extracts JSON test fixtures from a worklog state database.
// It groups tracked sessions by calendar date, classifies each date by
// shape, and writes one fixture file per shape bucket. It shares no
// state with the running daemon; point it at a copy of the database.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/anthropic/worklog/internal/config"
	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/store"
)

const dayFormat = "2006-01-02"

// Shape classifies one calendar date's session activity.
type Shape string

const (
	ShapeSingle       Shape = "single"        // exactly one session
	ShapeSmall        Shape = "small"         // 2-3 sessions, one project
	ShapeMedium       Shape = "medium"        // 4-8 sessions, one project
	ShapeLarge        Shape = "large"         // >8 sessions, one project
	ShapeMultiProject Shape = "multi_project" // sessions across projects
)

// DayFixture is one calendar date's sessions plus the projects they
// belong to, self-contained enough to seed a test store.
type DayFixture struct {
	Date         string           `json:"date"`
	SessionCount int              `json:"sessionCount"`
	ProjectCount int              `json:"projectCount"`
	Projects     []*model.Project `json:"projects"`
	Sessions     []*model.Session `json:"sessions"`
}

// Fixture is the per-bucket output file.
type Fixture struct {
	Shape       Shape        `json:"shape"`
	GeneratedAt string       `json:"generatedAt"`
	SourceDB    string       `json:"sourceDb"`
	Days        []DayFixture `json:"days"`
}

func main() {
	var (
		dbPath string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "fixturegen",
		Short: "Extract shape-bucketed JSON fixtures from a worklog database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := config.Load(config.ConfigPath())
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dbPath = cfg.DBPath
			}
			return run(dbPath, outDir)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "State database to read (default: the configured worklog database)")
	cmd.Flags().StringVar(&outDir, "out", "fixtures", "Directory to write fixture files into")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(dbPath, outDir string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("state database %s: %w", dbPath, err)
	}

	db, err := kv.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	st := store.New(db, model.SnapshotConfig{})
	if err := st.Load(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	buckets := bucketByShape(st.AllProjects())
	if len(buckets) == 0 {
		return fmt.Errorf("no sessions found in %s", dbPath)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for shape, days := range buckets {
		fixture := Fixture{
			Shape:       shape,
			GeneratedAt: now,
			SourceDB:    dbPath,
			Days:        days,
		}
		path := filepath.Join(outDir, string(shape)+".json")
		if err := writeFixture(path, fixture); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d days)\n", path, len(days))
	}
	return nil
}

// bucketByShape groups every session by the calendar date it started,
// classifies each date, and collects the dates under their shape.
func bucketByShape(projects []*model.Project) map[Shape][]DayFixture {
	type dayGroup struct {
		sessions []*model.Session
		projects map[string]*model.Project
	}

	days := make(map[string]*dayGroup)
	for _, p := range projects {
		for _, s := range p.Sessions {
			day := s.StartTime.Format(dayFormat)
			g := days[day]
			if g == nil {
				g = &dayGroup{projects: make(map[string]*model.Project)}
				days[day] = g
			}
			g.sessions = append(g.sessions, s)
			g.projects[p.ID] = p
		}
	}

	out := make(map[Shape][]DayFixture)
	for day, g := range days {
		fx := DayFixture{
			Date:         day,
			SessionCount: len(g.sessions),
			ProjectCount: len(g.projects),
			Sessions:     g.sessions,
		}
		for _, p := range g.projects {
			fx.Projects = append(fx.Projects, p)
		}
		sort.Slice(fx.Projects, func(i, j int) bool { return fx.Projects[i].ID < fx.Projects[j].ID })
		sort.Slice(fx.Sessions, func(i, j int) bool { return fx.Sessions[i].StartTime.Before(fx.Sessions[j].StartTime) })

		shape := classify(fx)
		out[shape] = append(out[shape], fx)
	}

	for _, fixtures := range out {
		sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].Date < fixtures[j].Date })
	}
	return out
}

// classify picks the shape bucket for one date. Multi-project wins over
// the size buckets so a busy cross-project day isn't filed as "large".
func classify(fx DayFixture) Shape {
	switch {
	case fx.ProjectCount > 1:
		return ShapeMultiProject
	case fx.SessionCount == 1:
		return ShapeSingle
	case fx.SessionCount <= 3:
		return ShapeSmall
	case fx.SessionCount <= 8:
		return ShapeMedium
	default:
		return ShapeLarge
	}
}

func writeFixture(path string, fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
