package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/groundseg/internal/dtm"
	"github.com/banshee-data/groundseg/internal/pipeline"
	"github.com/banshee-data/groundseg/internal/timeutil"
)

// TerrainRun is the persisted summary of one processed input.
type TerrainRun struct {
	RunID         string          `json:"run_id"`
	Input         string          `json:"input"`
	CreatedAt     int64           `json:"created_at"`
	Points        int             `json:"points"`
	Degenerate    int             `json:"degenerate"`
	Regions       int             `json:"regions"`
	Unassigned    int             `json:"unassigned"`
	GroundRegions int             `json:"ground_regions"`
	GroundPoints  int             `json:"ground_points"`
	Cells         int             `json:"cells"`
	RasterStep    float64         `json:"raster_step,omitempty"`
	OriginX       float64         `json:"origin_x,omitempty"`
	OriginY       float64         `json:"origin_y,omitempty"`
	NX            int             `json:"nx,omitempty"`
	NY            int             `json:"ny,omitempty"`
	Duration      time.Duration   `json:"duration_ns"`
	ParamsJSON    json.RawMessage `json:"params_json,omitempty"`
}

// NewTerrainRun summarises a pipeline output. raster may be nil.
func NewTerrainRun(input string, stats pipeline.Stats, raster *dtm.Raster, params json.RawMessage) *TerrainRun {
	run := &TerrainRun{
		Input:         input,
		Points:        stats.Points,
		Degenerate:    stats.Degenerate,
		Regions:       stats.Regions,
		Unassigned:    stats.Unassigned,
		GroundRegions: stats.GroundRegions,
		GroundPoints:  stats.GroundPoints,
		Cells:         stats.Cells,
		Duration:      stats.Total(),
		ParamsJSON:    params,
	}
	if raster != nil {
		run.RasterStep = raster.Step
		run.OriginX, run.OriginY = raster.OriginX, raster.OriginY
		run.NX, run.NY = raster.NX, raster.NY
	}
	return run
}

// RunStore provides persistence for terrain runs and their raster cells.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore. A nil clock uses the wall clock.
func NewRunStore(db *sql.DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

// Insert persists a run. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *TerrainRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO terrain_runs (
				run_id, input, created_at, points, degenerate, regions, unassigned,
				ground_regions, ground_points, cells, raster_step, origin_x, origin_y,
				nx, ny, duration_ns, params_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Input, run.CreatedAt, run.Points, run.Degenerate, run.Regions, run.Unassigned,
			run.GroundRegions, run.GroundPoints, run.Cells, run.RasterStep, run.OriginX, run.OriginY,
			run.NX, run.NY, int64(run.Duration), paramsStr,
		)
		if err != nil {
			return fmt.Errorf("insert terrain run: %w", err)
		}
		return nil
	})
}

// InsertCells stores the raster cells of a run in one transaction.
func (s *RunStore) InsertCells(runID string, cells []dtm.Cell) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin cells: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		stmt, err := tx.Prepare(`
			INSERT INTO terrain_cells (run_id, ix, iy, x, y, z, count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare cells: %w", err)
		}
		defer stmt.Close()

		for _, c := range cells {
			if _, err := stmt.Exec(runID, c.IX, c.IY, c.X, c.Y, c.Z, c.Count); err != nil {
				return fmt.Errorf("insert cell (%d,%d): %w", c.IX, c.IY, err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `
	run_id, input, created_at, points, degenerate, regions, unassigned,
	ground_regions, ground_points, cells, raster_step, origin_x, origin_y,
	nx, ny, duration_ns, params_json`

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*TerrainRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM terrain_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("terrain run %s not found", runID)
	}
	return run, err
}

// List returns runs ordered by creation time descending. A non-positive
// limit returns every run.
func (s *RunStore) List(limit int) ([]*TerrainRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM terrain_runs
		ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query terrain runs: %w", err)
	}
	defer rows.Close()

	var runs []*TerrainRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListByInput returns the runs recorded for one input, newest first.
func (s *RunStore) ListByInput(input string) ([]*TerrainRun, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM terrain_runs
		WHERE input = ? ORDER BY created_at DESC, run_id`, input)
	if err != nil {
		return nil, fmt.Errorf("query terrain runs: %w", err)
	}
	defer rows.Close()

	var runs []*TerrainRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Cells returns the raster cells of a run in row-major order.
func (s *RunStore) Cells(runID string) ([]dtm.Cell, error) {
	rows, err := s.db.Query(`
		SELECT ix, iy, x, y, z, count FROM terrain_cells
		WHERE run_id = ? ORDER BY iy, ix`, runID)
	if err != nil {
		return nil, fmt.Errorf("query terrain cells: %w", err)
	}
	defer rows.Close()

	var cells []dtm.Cell
	for rows.Next() {
		var c dtm.Cell
		if err := rows.Scan(&c.IX, &c.IY, &c.X, &c.Y, &c.Z, &c.Count); err != nil {
			return nil, fmt.Errorf("scan terrain cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// Delete removes a run and its cells.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM terrain_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete terrain run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("terrain run %s not found", runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*TerrainRun, error) {
	var r TerrainRun
	var step, ox, oy sql.NullFloat64
	var nx, ny sql.NullInt64
	var duration int64
	var paramsStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.Input, &r.CreatedAt, &r.Points, &r.Degenerate, &r.Regions, &r.Unassigned,
		&r.GroundRegions, &r.GroundPoints, &r.Cells, &step, &ox, &oy,
		&nx, &ny, &duration, &paramsStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan terrain run: %w", err)
	}
	r.RasterStep, r.OriginX, r.OriginY = step.Float64, ox.Float64, oy.Float64
	r.NX, r.NY = int(nx.Int64), int(ny.Int64)
	r.Duration = time.Duration(duration)
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}
