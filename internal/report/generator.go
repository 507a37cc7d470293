package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header is the single column title of a failure report.
const Header = "Failed Email Address"

// ContentType is served with every report download.
const ContentType = "text/csv; charset=utf-8"

const namePrefix = "failed_emails_"

// Artifact describes a stored failure report.
type Artifact struct {
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Generator writes failure reports into a Store.
type Generator struct {
	store Store
	now   func() time.Time
	token func() string
}

// NewGenerator creates a generator writing to store.
func NewGenerator(store Store) *Generator {
	return &Generator{
		store: store,
		now:   time.Now,
		token: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Generate writes one CSV row per failed address, in order. It returns
// nil, nil when there is nothing to report.
func (g *Generator) Generate(ctx context.Context, failed []string) (*Artifact, error) {
	if len(failed) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{Header}); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}
	for _, addr := range failed {
		if err := w.Write([]string{addr}); err != nil {
			return nil, fmt.Errorf("write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}

	created := g.now().UTC()
	name := FileName(created, g.token())
	if err := g.store.Put(ctx, name, buf.Bytes()); err != nil {
		return nil, err
	}
	return &Artifact{Name: name, Rows: len(failed), Size: int64(buf.Len()), CreatedAt: created}, nil
}

// FileName builds failed_emails_<2006-01-02_15-04-05>_<token>.csv.
func FileName(at time.Time, token string) string {
	return namePrefix + at.Format("2006-01-02_15-04-05") + "_" + token + ".csv"
}
