package db

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS datasets (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        input_path TEXT NOT NULL,
        output_path TEXT NOT NULL,
        rows INTEGER NOT NULL,
        input_dim INTEGER NOT NULL,
        output_dim INTEGER NOT NULL,
        registered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(name)
    );
    CREATE TABLE IF NOT EXISTS evaluations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model TEXT NOT NULL,
        sample TEXT NOT NULL,
        output TEXT NOT NULL,
        duration_ms REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS study_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        study TEXT NOT NULL,
        model TEXT NOT NULL,
        n INTEGER NOT NULL,
        failures INTEGER DEFAULT 0,
        mean TEXT NOT NULL,
        variance TEXT NOT NULL,
        std_error TEXT NOT NULL,
        total_cost REAL DEFAULT 0,
        duration_ms REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close closes the database handle
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// RegisterDataset records a loaded dataset pair
func RegisterDataset(name, inputPath, outputPath string, rows, inputDim, outputDim int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if name == "" {
		return errors.New("dataset name required")
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO datasets (name, input_path, output_path, rows, input_dim, output_dim, registered_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, inputPath, outputPath, rows, inputDim, outputDim, time.Now().UTC())
	return err
}

// SaveEvaluation records a single model evaluation
func SaveEvaluation(model string, sample, output []float64, duration time.Duration) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO evaluations (model, sample, output, duration_ms)
        VALUES (?, ?, ?, ?)`,
		model, encodeVector(sample), encodeVector(output), float64(duration)/float64(time.Millisecond))
	return err
}

// StudyRecord is one persisted study result
type StudyRecord struct {
	Study     string        `json:"study"`
	Model     string        `json:"model"`
	N         int           `json:"n"`
	Failures  int           `json:"failures"`
	Mean      []float64     `json:"mean"`
	Variance  []float64     `json:"variance"`
	StdError  []float64     `json:"std_error"`
	TotalCost float64       `json:"total_cost"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// SaveStudyResult persists one study result
func SaveStudyResult(rec StudyRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if rec.Study == "" {
		return errors.New("study name required")
	}
	_, err := database.Exec(`
        INSERT INTO study_results (study, model, n, failures, mean, variance, std_error, total_cost, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Study, rec.Model, rec.N, rec.Failures,
		encodeVector(rec.Mean), encodeVector(rec.Variance), encodeVector(rec.StdError),
		rec.TotalCost, float64(rec.Duration)/float64(time.Millisecond))
	return err
}

// QueryStudyResults returns the most recent results for a study
func QueryStudyResults(study string, limit int) ([]StudyRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT study, model, n, failures, mean, variance, std_error, total_cost, duration_ms, created_at
        FROM study_results
        WHERE study = ?
        ORDER BY created_at DESC
        LIMIT ?`, study, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]StudyRecord, 0)
	for rows.Next() {
		var rec StudyRecord
		var mean, variance, stdError string
		var durationMs float64
		if err := rows.Scan(&rec.Study, &rec.Model, &rec.N, &rec.Failures,
			&mean, &variance, &stdError, &rec.TotalCost, &durationMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if rec.Mean, err = decodeVector(mean); err != nil {
			return nil, err
		}
		if rec.Variance, err = decodeVector(variance); err != nil {
			return nil, err
		}
		if rec.StdError, err = decodeVector(stdError); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMs * float64(time.Millisecond))
		records = append(records, rec)
	}
	return records, rows.Err()
}

func encodeVector(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func decodeVector(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
