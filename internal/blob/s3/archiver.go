package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// Archiver uploads completed run artifacts: one JSON summary per run plus a
// JSONL fill log per security.
//
// Key layout, partitioned by run date:
//
//	{prefix}/runs/2026-08/{runID}/summary.json
//	{prefix}/runs/2026-08/{runID}/fills/{security}.jsonl
type Archiver struct {
	client *Client
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix.
func NewArchiver(client *Client, prefix string) *Archiver {
	return &Archiver{client: client, prefix: prefix}
}

// runSummary is the serialized form of one run's per-security outcomes.
type runSummary struct {
	RunID      string            `json:"run_id"`
	Strategy   string            `json:"strategy"`
	FinishedAt time.Time         `json:"finished_at"`
	Securities []securitySummary `json:"securities"`
}

type securitySummary struct {
	Security          string  `json:"security"`
	Position          float64 `json:"position"`
	RealizedPnL       float64 `json:"realized_pnl"`
	TotalPnL          float64 `json:"total_pnl"`
	FillCount         int     `json:"fill_count"`
	EventRows         int64   `json:"event_rows"`
	TradeEvents       int64   `json:"trade_events"`
	StopLossTriggers  int     `json:"stop_loss_triggers"`
	UnresolvedFlatten bool    `json:"unresolved_flatten"`
}

// ArchiveRun uploads the summary and per-security fill logs for one run.
func (a *Archiver) ArchiveRun(ctx context.Context, runID, strategy string, finishedAt time.Time, results []domain.Result) error {
	summary := runSummary{
		RunID:      runID,
		Strategy:   strategy,
		FinishedAt: finishedAt,
	}
	for _, res := range results {
		summary.Securities = append(summary.Securities, securitySummary{
			Security:          res.Security,
			Position:          res.Position,
			RealizedPnL:       res.RealizedPnL,
			TotalPnL:          res.TotalPnL,
			FillCount:         len(res.Fills),
			EventRows:         res.Counts.Rows,
			TradeEvents:       res.Counts.Trades,
			StopLossTriggers:  res.StopLossTriggers,
			UnresolvedFlatten: res.UnresolvedFlatten,
		})
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal run summary: %w", err)
	}
	key := a.runKey(runID, finishedAt, "summary.json")
	if err := a.put(ctx, key, data, "application/json"); err != nil {
		return err
	}

	for _, res := range results {
		if len(res.Fills) == 0 {
			continue
		}
		buf, err := marshalJSONL(res.Fills)
		if err != nil {
			return fmt.Errorf("s3blob: marshal fills %s: %w", res.Security, err)
		}
		key := a.runKey(runID, finishedAt, "fills/"+res.Security+".jsonl")
		if err := a.put(ctx, key, buf, "application/x-ndjson"); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.S3().PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.Bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) runKey(runID string, finishedAt time.Time, name string) string {
	key := fmt.Sprintf("runs/%s/%s/%s", finishedAt.Format("2006-01"), runID, name)
	if a.prefix != "" {
		return a.prefix + "/" + key
	}
	return key
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
