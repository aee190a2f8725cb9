// Package remote implements the XML-RPC client for the central
// maintenance backend. All calls retry transient failures with
// exponential backoff and surface categorized errors.
package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kolo/xmlrpc"

	"github.com/opslink-dev/fieldsync/internal/config"
	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/sync"
	"github.com/opslink-dev/fieldsync/internal/utils"
)

// tableModels maps local table names onto backend model names.
var tableModels = map[string]string{
	"work_orders":    "maintenance.request",
	"assets":         "maintenance.equipment",
	"meter_readings": "maintenance.meter.reading",
	"photos":         "ir.attachment",
}

// tableFields lists the backend fields fetched per model.
var tableFields = map[string][]string{
	"work_orders":    {"title", "description", "status", "priority", "assigned_to", "completion_notes", "completed_at", "completed_by", "due_at", "write_date"},
	"assets":         {"name", "location", "category", "criticality", "notes", "write_date"},
	"meter_readings": {"value", "unit", "read_at", "read_by", "write_date"},
	"photos":         {"name", "checksum", "file_size", "write_date"},
}

const retryMaxElapsed = 30 * time.Second

// newCallBackoff returns a fresh backoff per call; BackOff
// implementations are stateful and must not be shared.
func newCallBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// Client talks XML-RPC to the central maintenance system.
type Client struct {
	URL       string
	Database  string
	Username  string
	Password  string
	Uid       int
	CommonURL string
	ObjectURL string
}

// NewClient builds a client from the remote section of the config.
func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		URL:       cfg.URL,
		Database:  cfg.Database,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CommonURL: fmt.Sprintf("%s/xmlrpc/2/common", cfg.URL),
		ObjectURL: fmt.Sprintf("%s/xmlrpc/2/object", cfg.URL),
	}
}

// Authenticate logs in and caches the backend user id.
func (c *Client) Authenticate(ctx context.Context) error {
	var uid int
	err := c.call(ctx, c.CommonURL, "authenticate",
		[]interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}, &uid)
	if err != nil {
		return &sync.RemoteError{Category: sync.CategoryAuth, Op: "authenticate", Err: err}
	}
	if uid == 0 {
		return &sync.RemoteError{Category: sync.CategoryAuth, Op: "authenticate", Err: fmt.Errorf("invalid credentials")}
	}
	c.Uid = uid
	log.Printf("🔐 Authenticated against %s as uid %d", c.URL, uid)
	return nil
}

// Ping checks backend reachability via the version endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var version map[string]interface{}
	if err := c.call(ctx, c.CommonURL, "version", []interface{}{}, &version); err != nil {
		return &sync.RemoteError{Category: sync.CategoryTransient, Op: "ping", Err: err}
	}
	return nil
}

// FetchRecord reads one backend record as a snapshot.
func (c *Client) FetchRecord(ctx context.Context, table string, serverID int64) (sync.RecordSnapshot, error) {
	model, err := c.modelFor(table)
	if err != nil {
		return sync.RecordSnapshot{}, err
	}

	var rows []map[string]interface{}
	err = c.executeKw(ctx, model, "read",
		[]interface{}{[]int64{serverID}},
		map[string]interface{}{"fields": tableFields[table]},
		&rows)
	if err != nil {
		return sync.RecordSnapshot{}, c.wrap("fetch", err)
	}
	if len(rows) == 0 {
		return sync.RecordSnapshot{}, &sync.RemoteError{
			Category: sync.CategoryValidation, Op: "fetch",
			Err: fmt.Errorf("%s record %d not found", table, serverID),
		}
	}
	return c.snapshot(table, serverID, rows[0]), nil
}

// FetchChangedSince lists backend records written after the given time.
func (c *Client) FetchChangedSince(ctx context.Context, table string, sinceMs int64) ([]sync.RecordSnapshot, error) {
	model, err := c.modelFor(table)
	if err != nil {
		return nil, err
	}

	domain := []interface{}{}
	if sinceMs > 0 {
		since := time.UnixMilli(sinceMs).UTC().Format("2006-01-02 15:04:05")
		domain = append(domain, []interface{}{"write_date", ">", since})
	}

	var rows []map[string]interface{}
	err = c.executeKw(ctx, model, "search_read",
		[]interface{}{domain},
		map[string]interface{}{"fields": tableFields[table], "limit": 500},
		&rows)
	if err != nil {
		return nil, c.wrap("pull", err)
	}

	snaps := make([]sync.RecordSnapshot, 0, len(rows))
	for _, row := range rows {
		serverID := toInt64(row["id"])
		snaps = append(snaps, c.snapshot(table, serverID, row))
	}
	return snaps, nil
}

// PushRecord creates or updates a backend record and returns its id.
func (c *Client) PushRecord(ctx context.Context, table string, serverID *int64, fields map[string]interface{}) (int64, error) {
	model, err := c.modelFor(table)
	if err != nil {
		return 0, err
	}

	if serverID == nil {
		var id int64
		err := c.executeKw(ctx, model, "create", []interface{}{fields}, nil, &id)
		if err != nil {
			return 0, c.wrap("push", err)
		}
		return id, nil
	}

	var ok bool
	err = c.executeKw(ctx, model, "write", []interface{}{[]int64{*serverID}, fields}, nil, &ok)
	if err != nil {
		return 0, c.wrap("push", err)
	}
	if !ok {
		return 0, &sync.RemoteError{
			Category: sync.CategoryValidation, Op: "push",
			Err: fmt.Errorf("write to %s/%d rejected", table, *serverID),
		}
	}
	return *serverID, nil
}

// UploadPhoto sends a photo file to the backend as an attachment.
func (c *Client) UploadPhoto(ctx context.Context, upload models.Upload, progress func(bytesSent int64)) error {
	data, err := os.ReadFile(upload.FilePath)
	if err != nil {
		return &sync.RemoteError{Category: sync.CategoryValidation, Op: "upload", Err: err}
	}

	// A hash mismatch means the file changed or corrupted after capture;
	// retrying will not help.
	checksum := utils.HashBytes(data)
	if upload.ContentHash != "" && upload.ContentHash != checksum {
		return &sync.RemoteError{
			Category: sync.CategoryValidation,
			Op:       "upload",
			Err:      fmt.Errorf("content hash mismatch for %s", upload.PhotoID),
		}
	}

	values := map[string]interface{}{
		"name":     filepath.Base(upload.FilePath),
		"datas":    base64.StdEncoding.EncodeToString(data),
		"checksum": checksum,
	}

	var id int64
	if err := c.executeKw(ctx, "ir.attachment", "create", []interface{}{values}, nil, &id); err != nil {
		return c.wrap("upload", err)
	}
	// The attachment is created in one call, so progress jumps straight
	// to the full size once the backend accepts it.
	if progress != nil {
		progress(int64(len(data)))
	}
	log.Printf("📤 Uploaded photo %s (%d bytes) as attachment %d", upload.PhotoID, len(data), id)
	return nil
}

// executeKw runs one model method with per-call retry. kwargs may be nil.
func (c *Client) executeKw(ctx context.Context, model, method string, posArgs []interface{}, kwargs map[string]interface{}, result interface{}) error {
	args := []interface{}{c.Database, c.Uid, c.Password, model, method, posArgs}
	if kwargs != nil {
		args = append(args, kwargs)
	}
	return c.call(ctx, c.ObjectURL, "execute_kw", args, result)
}

// call dials, invokes and retries one XML-RPC method. Only transient
// failures are retried; everything else stops immediately.
func (c *Client) call(ctx context.Context, endpoint, method string, args []interface{}, result interface{}) error {
	do := func() error {
		client, err := xmlrpc.NewClient(endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create XML-RPC client: %w", err)
		}
		defer client.Close()

		if err := client.Call(method, args, result); err != nil {
			return fmt.Errorf("failed to execute %s: %w", method, err)
		}
		return nil
	}

	return backoff.Retry(func() error {
		err := do()
		if err == nil {
			return nil
		}
		if sync.Categorize(err) == sync.CategoryTransient {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(newCallBackoff(), ctx))
}

func (c *Client) modelFor(table string) (string, error) {
	model, ok := tableModels[table]
	if !ok {
		return "", &sync.RemoteError{
			Category: sync.CategoryValidation, Op: "map",
			Err: fmt.Errorf("no backend model for table %s", table),
		}
	}
	return model, nil
}

// wrap categorizes a raw transport error unless it is already typed.
func (c *Client) wrap(op string, err error) error {
	if _, ok := err.(*sync.RemoteError); ok {
		return err
	}
	return &sync.RemoteError{Category: sync.Categorize(err), Op: op, Err: err}
}

// snapshot converts a backend row into a snapshot, lifting write_date
// into the modification timestamp.
func (c *Client) snapshot(table string, serverID int64, row map[string]interface{}) sync.RecordSnapshot {
	fields := make(map[string]interface{}, len(row))
	var modifiedAt int64
	for k, v := range row {
		switch k {
		case "id":
			continue
		case "write_date":
			if s, ok := v.(string); ok {
				if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
					modifiedAt = ts.UnixMilli()
				}
			}
		default:
			fields[k] = v
		}
	}
	return sync.RecordSnapshot{
		TableName:  table,
		RecordID:   fmt.Sprintf("%s-%d", table, serverID),
		ServerID:   &serverID,
		ModifiedAt: modifiedAt,
		Fields:     fields,
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
