package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/openrmt/openrmt/pkg/errors"
)

// MetricLog appends training metric rows to two CSV files in a log
// directory: a per-run timestamped file for mid-epoch reports and a
// fixed-name file for end-of-epoch summaries. Rows are
// step,loss,dist,acc with no header. Files are created on first append.
type MetricLog struct {
	dir          string
	periodicName string
	summaryName  string
}

// NewMetricLog creates a metric log rooted at dir. The periodic file name
// is stamped with the wall clock at construction so each run gets its own
// file, while every run shares the summary file.
func NewMetricLog(dir string, now time.Time) *MetricLog {
	return &MetricLog{
		dir:          dir,
		periodicName: fmt.Sprintf("log_%s.csv", now.Format("20060102T150405")),
		summaryName:  "log.csv",
	}
}

// PeriodicPath returns the path of the per-run file.
func (l *MetricLog) PeriodicPath() string {
	return filepath.Join(l.dir, l.periodicName)
}

// SummaryPath returns the path of the shared summary file.
func (l *MetricLog) SummaryPath() string {
	return filepath.Join(l.dir, l.summaryName)
}

// AppendPeriodic appends a mid-epoch row to the per-run file.
func (l *MetricLog) AppendPeriodic(step int, loss, dist, acc float64) error {
	return l.append(l.PeriodicPath(), step, loss, dist, acc)
}

// AppendSummary appends an end-of-epoch row to the shared summary file.
// The step column carries the number of training steps the epoch ran.
func (l *MetricLog) AppendSummary(step int, loss, dist, acc float64) error {
	return l.append(l.SummaryPath(), step, loss, dist, acc)
}

func (l *MetricLog) append(path string, step int, loss, dist, acc float64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodeLogWriteFailed, "failed to open metric log "+path)
	}
	defer f.Close()

	row := strconv.Itoa(step) + "," +
		formatMetric(loss) + "," +
		formatMetric(dist) + "," +
		formatMetric(acc) + "\n"
	if _, err := f.WriteString(row); err != nil {
		return errors.Wrap(err, errors.CodeLogWriteFailed, "failed to append metric row to "+path)
	}
	return nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
