package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"surromc/db"
	"surromc/model"
)

type runConfig struct {
	inputFile  string
	outputFile string
	cost       float64
	skipHeader int
	gbk        bool
	sample     []float64
	dbPath     string
	name       string
}

func main() {
	inputFile := flag.String("inputs", "", "input data file")
	outputFile := flag.String("outputs", "", "output data file")
	cost := flag.Float64("cost", 0, "model cost in seconds")
	skipHeader := flag.Int("skip_header", 0, "header rows to skip")
	gbk := flag.Bool("gbk", false, "decode data files from GBK")
	sampleArg := flag.String("sample", "", "sample to evaluate, comma-separated")
	dbPath := flag.String("db", "", "sqlite path to record the evaluation (optional)")
	name := flag.String("name", "", "model name for the record, defaults to the input file name")
	flag.Parse()

	if *inputFile == "" || *outputFile == "" {
		log.Fatal("inputs and outputs are required")
	}
	if *sampleArg == "" {
		log.Fatal("sample is required")
	}

	sample, err := parseSample(*sampleArg)
	if err != nil {
		log.Fatalf("failed to parse sample: %v", err)
	}

	result, err := run(runConfig{
		inputFile:  *inputFile,
		outputFile: *outputFile,
		cost:       *cost,
		skipHeader: *skipHeader,
		gbk:        *gbk,
		sample:     sample,
		dbPath:     *dbPath,
		name:       *name,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(result)
}

func run(cfg runConfig) (string, error) {
	opts := []model.Option{model.SkipHeaderRows(cfg.skipHeader)}
	if cfg.gbk {
		opts = append(opts, model.GBK())
	}
	m, err := model.NewDataModel(cfg.inputFile, cfg.outputFile, cfg.cost, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to build model: %w", err)
	}
	log.Printf("loaded %d samples (%d -> %d)", m.Len(), m.InputDim(), m.OutputDim())

	start := time.Now()
	output, err := m.Evaluate(cfg.sample)
	elapsed := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("evaluation failed: %w", err)
	}

	if cfg.dbPath != "" {
		if err := db.InitDB(cfg.dbPath); err != nil {
			return "", fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		name := cfg.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(cfg.inputFile), filepath.Ext(cfg.inputFile))
		}
		if err := db.SaveEvaluation(name, cfg.sample, output, elapsed); err != nil {
			return "", fmt.Errorf("failed to record evaluation: %w", err)
		}
	}

	parts := make([]string, len(output))
	for i, v := range output {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " "), nil
}

func parseSample(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	sample := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		sample[i] = v
	}
	return sample, nil
}
