package data

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/openrmt/openrmt/pkg/errors"
)

// ReadJSONL reads preference pairs from one JSONL file. Each line is a JSON
// object with "chosen" and "rejected" fields and an optional "prompt".
// Lines missing either response are rejected, not skipped: a malformed
// dataset should fail the run loudly.
func ReadJSONL(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatasetNotFound,
			fmt.Sprintf("failed to open dataset file %s", path))
	}
	defer f.Close()

	var pairs []Pair
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		chosen := gjson.GetBytes(line, "chosen")
		rejected := gjson.GetBytes(line, "rejected")
		if !chosen.Exists() || !rejected.Exists() {
			return nil, errors.DataError(errors.CodeDatasetDecode,
				fmt.Sprintf("%s:%d: record missing chosen/rejected fields", path, lineNo))
		}

		pairs = append(pairs, Pair{
			Prompt:   gjson.GetBytes(line, "prompt").String(),
			Chosen:   chosen.String(),
			Rejected: rejected.String(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatasetDecode,
			fmt.Sprintf("failed to scan dataset file %s", path))
	}

	return pairs, nil
}

// LoadGlob reads every JSONL shard matching the pattern, fanning shards out
// over workers goroutines. Shard order is preserved so a pass over the
// dataset is deterministic regardless of worker count.
func LoadGlob(ctx context.Context, pattern string, workers int) ([]Pair, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatasetNotFound, "invalid dataset glob")
	}
	if len(paths) == 0 {
		return nil, errors.DataError(errors.CodeDatasetNotFound,
			fmt.Sprintf("no dataset shards match %s", pattern))
	}
	sort.Strings(paths)

	if workers < 1 {
		workers = 1
	}

	shards := make([][]Pair, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			pairs, err := ReadJSONL(path)
			if err != nil {
				return err
			}
			shards[i] = pairs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Pair
	for _, shard := range shards {
		all = append(all, shard...)
	}
	return all, nil
}
