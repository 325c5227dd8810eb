package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/qabot/internal/domain"
)

// column keys, independent of the header language
const (
	colID       = "id"
	colQuestion = "question"
	colAnswer   = "answer"
	colPriority = "priority"
	colSource   = "source"
	colFeedback = "feedback"
	colCreated  = "created_at"
)

// headerAliases maps every accepted header cell to its column key
var headerAliases = map[string]string{
	"id":         colID,
	"question":   colQuestion,
	"質問":         colQuestion,
	"answer":     colAnswer,
	"回答":         colAnswer,
	"priority":   colPriority,
	"優先度":        colPriority,
	"source":     colSource,
	"回答元":        colSource,
	"feedback":   colFeedback,
	"評価":         colFeedback,
	"created_at": colCreated,
	"日時":         colCreated,
}

var headerNames = map[string]map[string]string{
	"en": {
		colID: "id", colQuestion: "question", colAnswer: "answer", colPriority: "priority",
		colSource: "source", colFeedback: "feedback", colCreated: "created_at",
	},
	"ja": {
		colID: "id", colQuestion: "質問", colAnswer: "回答", colPriority: "優先度",
		colSource: "回答元", colFeedback: "評価", colCreated: "日時",
	},
}

var feedbackLabels = map[string]map[domain.Feedback]string{
	"en": {domain.FeedbackNotRated: "Not Rated", domain.FeedbackYes: "Yes", domain.FeedbackNo: "No"},
	"ja": {domain.FeedbackNotRated: "未評価", domain.FeedbackYes: "はい", domain.FeedbackNo: "いいえ"},
}

var manualColumns = []string{colQuestion, colAnswer, colPriority}

var ledgerColumns = []string{colID, colQuestion, colAnswer, colSource, colFeedback, colCreated}

// CSVTables stores each table in its own UTF-8 CSV file with a header row
type CSVTables struct {
	manualPath string
	faqPath    string
	ledgerPath string
	locale     string
}

// NewCSV creates CSV-backed tables. faqPath may be empty.
func NewCSV(manualPath, faqPath, ledgerPath, locale string) *CSVTables {
	locale = strings.ToLower(locale)
	if _, ok := headerNames[locale]; !ok {
		locale = "en"
	}
	return &CSVTables{
		manualPath: manualPath,
		faqPath:    faqPath,
		ledgerPath: ledgerPath,
		locale:     locale,
	}
}

func (t *CSVTables) Path(table string) string {
	switch table {
	case TableManual:
		return t.manualPath
	case TableFAQ:
		return t.faqPath
	case TableLedger:
		return t.ledgerPath
	}
	return ""
}

func (t *CSVTables) Close() error { return nil }

func (t *CSVTables) LoadManual(ctx context.Context) ([]domain.ManualEntry, error) {
	return readManual(t.manualPath)
}

func (t *CSVTables) LoadFAQ(ctx context.Context) ([]domain.ManualEntry, error) {
	if t.faqPath == "" {
		return nil, nil
	}
	return readManual(t.faqPath)
}

func (t *CSVTables) SaveManual(ctx context.Context, entries []domain.ManualEntry) error {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		priority := ""
		if e.Priority != nil {
			priority = strconv.Itoa(*e.Priority)
		}
		records = append(records, []string{e.Question, e.Answer, priority})
	}
	return t.write(t.manualPath, manualColumns, records)
}

func (t *CSVTables) LoadLedger(ctx context.Context) ([]domain.LedgerRow, error) {
	header, records, err := readTable(t.ledgerPath)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(t.ledgerPath, header, colQuestion, colAnswer); err != nil {
		return nil, err
	}

	rows := make([]domain.LedgerRow, 0, len(records))
	for i, rec := range records {
		row := domain.LedgerRow{
			ID:       cell(rec, header, colID),
			Question: rawCell(rec, header, colQuestion),
			Answer:   rawCell(rec, header, colAnswer),
			Feedback: parseFeedbackLabel(cell(rec, header, colFeedback)),
		}
		if row.ID == "" {
			// rows from files written before ids existed
			row.ID = uuid.New().String()
		}
		if s := cell(rec, header, colSource); s != "" {
			src, err := domain.ParseSource(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedResource, t.ledgerPath, i+2, err)
			}
			row.Source = src
		}
		if ts := cell(rec, header, colCreated); ts != "" {
			created, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: bad timestamp %q", ErrMalformedResource, t.ledgerPath, i+2, ts)
			}
			row.CreatedAt = created
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (t *CSVTables) SaveLedger(ctx context.Context, rows []domain.LedgerRow) error {
	labels := feedbackLabels[t.locale]
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		fb := r.Feedback
		if fb == "" {
			fb = domain.FeedbackNotRated
		}
		records = append(records, []string{r.ID, r.Question, r.Answer, string(r.Source), labels[fb], created})
	}
	return t.write(t.ledgerPath, ledgerColumns, records)
}

// write replaces path wholesale via a temp file and rename
func (t *CSVTables) write(path string, columns []string, records [][]string) error {
	names := headerNames[t.locale]
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = names[c]
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readManual(path string) ([]domain.ManualEntry, error) {
	header, records, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(path, header, colQuestion, colAnswer); err != nil {
		return nil, err
	}

	entries := make([]domain.ManualEntry, 0, len(records))
	for i, rec := range records {
		e := domain.ManualEntry{
			Question: rawCell(rec, header, colQuestion),
			Answer:   rawCell(rec, header, colAnswer),
		}
		if p := cell(rec, header, colPriority); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: priority %q is not an integer", ErrMalformedResource, path, i+2, p)
			}
			e.Priority = &n
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// readTable returns the header (column key -> index) and the data records
func readTable(path string) (map[string]int, [][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s does not exist", ErrMissingResource, path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	first, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrMissingResource, path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedResource, path, err)
	}

	header := make(map[string]int, len(first))
	for i, name := range first {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, dup := header[key]; !dup {
			header[key] = i
		}
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedResource, path, err)
	}
	return header, records, nil
}

func requireColumns(path string, header map[string]int, keys ...string) error {
	for _, k := range keys {
		if _, ok := header[k]; !ok {
			return fmt.Errorf("%w: %s has no %s column", ErrMalformedResource, path, k)
		}
	}
	return nil
}

// cell returns a key-like value (id, source, feedback, priority, timestamp) trimmed
func cell(rec []string, header map[string]int, key string) string {
	return strings.TrimSpace(rawCell(rec, header, key))
}

// rawCell returns free text exactly as stored
func rawCell(rec []string, header map[string]int, key string) string {
	i, ok := header[key]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseFeedbackLabel(s string) domain.Feedback {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "はい":
		return domain.FeedbackYes
	case "no", "いいえ":
		return domain.FeedbackNo
	}
	return domain.FeedbackNotRated
}
