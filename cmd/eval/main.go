// The eval binary benchmarks the ranking engine against a gold-case set and
// prints the metrics as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"phenodx/adapters/postgres"
	"phenodx/domain/rank"
	"phenodx/eval"
	"phenodx/internal/config"
	"phenodx/internal/logging"
)

func main() {
	casesPath := flag.String("cases", "", "gold cases file (.json or .xlsx)")
	kList := flag.String("k", "1,3,5", "comma-separated cutoffs for accuracy@k")
	ablateK := flag.Int("ablate-k", 5, "top-k retention cutoff for the drop-one-term sweep (0 disables)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration invalid")
	}
	log := logging.New(cfg.Logging)

	if *casesPath == "" {
		log.Fatal("-cases is required")
	}
	cases, err := loadCases(*casesPath)
	if err != nil {
		log.WithError(err).Fatal("gold cases unreadable")
	}

	ks, err := parseKs(*kList)
	if err != nil {
		log.WithError(err).Fatal("invalid -k list")
	}

	repo, err := postgres.NewReferenceRepository(cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("reference database unavailable")
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	snap, err := repo.LoadSnapshot(ctx)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("reference snapshot load failed")
	}
	ranker := rank.NewRanker(snap)

	summary, err := eval.Evaluate(ranker, cases, ks)
	if err != nil {
		log.WithError(err).Fatal("evaluation failed")
	}

	result := struct {
		Summary    *eval.Summary    `json:"summary"`
		Robustness *eval.Robustness `json:"robustness,omitempty"`
	}{Summary: summary}
	if *ablateK > 0 {
		result.Robustness = eval.Ablate(ranker, cases, *ablateK)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.WithError(err).Fatal("encode results")
	}
}

func loadCases(path string) ([]eval.GoldCase, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return eval.LoadCasesXLSX(path)
	}
	return eval.LoadCasesJSON(path)
}

func parseKs(list string) ([]int, error) {
	var ks []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ks = append(ks, k)
	}
	return ks, nil
}
