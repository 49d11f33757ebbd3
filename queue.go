package glidein

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/bbockelm/golang-glidein/logging"
)

// queueRowPattern matches one batch line of condor_q's default output:
//
//	OWNER  BATCH_NAME  SUBMITTED   DONE RUN IDLE [HOLD] TOTAL JOB_IDS
//	alice  ID: 42      10/18 09:15    _   1    4          5   42.0-4
//
// Anything else (banners, totals, blank lines) does not match.
var queueRowPattern = regexp.MustCompile(`^\s*(\w+)\s+(ID:\s+(\d+))\s+(\d{1,2}/\d{1,2}\s+\d{1,2}:\d{1,2})\s+([_\d]+)\s+([_\d]+)\s+([_\d]+)\s+([_\d]+)\s+(?:([_\d]+)\s+)?(\d+\.\d+(?:-\d+)?)\s*$`)

// QueueRecord is one batch row of the queue listing.
type QueueRecord struct {
	Owner     string
	BatchName string // "ID: 42"
	BatchID   int
	Submitted string // "10/18 09:15"
	// Counters holds four or five job-state counts; "_" reads as 0
	Counters  []int
	JobIDs    string // "42.0-4"

	columns []string
}

// Columns returns the row's fields as printed, omitting an absent optional counter.
func (r QueueRecord) Columns() []string {
	return append([]string(nil), r.columns...)
}

// ParseQueue parses condor_q output. The header is the second line of the
// trimmed text split on whitespace. Lines that are not batch rows are skipped.
func ParseQueue(raw string) (header []string, rows []QueueRecord) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) > 1 {
		header = strings.Fields(lines[1])
	}

	for _, line := range lines {
		m := queueRowPattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		rec := QueueRecord{
			Owner:     m[1],
			BatchName: m[2],
			Submitted: m[4],
			JobIDs:    m[10],
		}
		rec.BatchID, _ = strconv.Atoi(m[3])
		rec.columns = []string{m[1], m[2], m[4]}
		for _, c := range m[5:10] {
			if c == "" {
				continue
			}
			rec.Counters = append(rec.Counters, parseCounter(c))
			rec.columns = append(rec.columns, c)
		}
		rec.columns = append(rec.columns, m[10])
		rows = append(rows, rec)
	}
	return header, rows
}

func parseCounter(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// QueueLister runs condor_q and parses its output.
type QueueLister struct {
	// Path is the condor_q binary. Empty means "condor_q" from PATH.
	Path   string
	Args   []string
	Logger *logging.Logger
}

// List runs the listing tool and returns the parsed header and rows.
func (q *QueueLister) List(ctx context.Context) ([]string, []QueueRecord, error) {
	path := q.Path
	if path == "" {
		path = "condor_q"
	}

	cmd := exec.CommandContext(ctx, path, q.Args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			q.Logger.Error(logging.DestinationSubmit, "condor_q failed", "exit_code", exitErr.ExitCode(), "stderr", stderr.String())
			return nil, nil, &QueueListingError{ExitCode: exitErr.ExitCode(), Output: stderr.Bytes()}
		}
		return nil, nil, &QueueListingError{ExitCode: -1, Err: err}
	}

	header, rows := ParseQueue(string(out))
	q.Logger.Debug(logging.DestinationSubmit, "listed queue", "rows", len(rows))
	return header, rows, nil
}
