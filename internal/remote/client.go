package remote

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/kolo/xmlrpc"
	"github.com/pipetrax/fieldsyncgo/internal/chainage"
	"github.com/pipetrax/fieldsyncgo/internal/config"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"github.com/pipetrax/fieldsyncgo/internal/sync"
)

// Remote models in the system of record
const (
	reportModel     = "pipeline.daily.report"
	statusModel     = "pipeline.report.status"
	rangeModel      = "pipeline.activity.range"
	attachmentModel = "ir.attachment"
)

// Client is an XML-RPC client for the remote system of record. It implements
// both the sync engine's Remote interface and the chainage manager's
// RangeSource.
type Client struct {
	URL       string
	Database  string
	Username  string
	Password  string
	Uid       int
	CommonURL string
	ObjectURL string
}

// NewClient creates a new remote client
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

// Authenticate authenticates with the remote and returns the user ID
func (c *Client) Authenticate() (int, error) {
	client, err := xmlrpc.NewClient(c.CommonURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}
	var uid int
	if err := client.Call("authenticate", args, &uid); err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}

	c.Uid = uid
	return uid, nil
}

// Ping checks whether the remote endpoint is reachable
func (c *Client) Ping() error {
	client, err := xmlrpc.NewClient(c.CommonURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	var version map[string]interface{}
	if err := client.Call("version", nil, &version); err != nil {
		return fmt.Errorf("remote unreachable: %w", err)
	}
	return nil
}

func (c *Client) ensureAuth() error {
	if c.Uid != 0 {
		return nil
	}
	_, err := c.Authenticate()
	return err
}

// execute runs one execute_kw call against the object endpoint
func (c *Client) execute(model, method string, posArgs []interface{}, kwArgs map[string]interface{}, result interface{}) error {
	if err := c.ensureAuth(); err != nil {
		return err
	}

	client, err := xmlrpc.NewClient(c.ObjectURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{c.Database, c.Uid, c.Password, model, method, posArgs}
	if kwArgs != nil {
		args = append(args, kwArgs)
	}

	if err := client.Call("execute_kw", args, result); err != nil {
		return fmt.Errorf("failed to execute %s on %s: %w", method, model, err)
	}
	return nil
}

// searchRead performs a search_read and returns the raw rows
func (c *Client) searchRead(model string, domain []interface{}, fields []string, limit int, order string) ([]map[string]interface{}, error) {
	kw := map[string]interface{}{
		"fields": fields,
		"limit":  limit,
	}
	if order != "" {
		kw["order"] = order
	}

	var rows []map[string]interface{}
	err := c.execute(model, "search_read", []interface{}{domain}, kw, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// create inserts one record and returns its id
func (c *Client) create(model string, values map[string]interface{}) (int64, error) {
	var id int64
	err := c.execute(model, "create", []interface{}{values}, nil, &id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// unlink deletes records by id
func (c *Client) unlink(model string, ids []int64) error {
	var success bool
	err := c.execute(model, "unlink", []interface{}{ids}, nil, &success)
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("unlink on %s returned false", model)
	}
	return nil
}

// FindReportByKey queries the remote for a report matching the natural key.
// Returns nil, nil when no record matches.
func (c *Client) FindReportByKey(key sync.NaturalKey) (*sync.RemoteReport, error) {
	domain := []interface{}{
		[]interface{}{"report_date", "=", key.ReportDate},
		[]interface{}{"spread", "=", key.Spread},
		[]interface{}{"inspector_ref", "=", key.InspectorID},
		[]interface{}{"company_ref", "=", key.CompanyID},
	}

	rows, err := c.searchRead(reportModel,
		domain,
		[]string{"id", "report_date", "spread", "inspector_ref", "company_ref", "payload_json"},
		1, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	id, _ := toInt64(row["id"])
	return &sync.RemoteReport{
		RemoteID:    id,
		ReportDate:  toString(row["report_date"]),
		Spread:      toString(row["spread"]),
		InspectorID: toString(row["inspector_ref"]),
		CompanyID:   toString(row["company_ref"]),
		Payload:     row,
	}, nil
}

// UploadAttachment stores the binary remotely and returns a durable reference
func (c *Client) UploadAttachment(att *models.Attachment) (string, error) {
	id, err := c.create(attachmentModel, map[string]interface{}{
		"name":      att.OriginalName,
		"mimetype":  att.MimeType,
		"datas":     base64.StdEncoding.EncodeToString(att.Content),
		"res_model": reportModel,
	})
	if err != nil {
		return "", fmt.Errorf("attachment upload failed: %w", err)
	}
	return fmt.Sprintf("%s/%d", attachmentModel, id), nil
}

// InsertReport inserts the assembled report row
func (c *Client) InsertReport(values map[string]interface{}) (int64, error) {
	return c.create(reportModel, values)
}

// InsertReportStatus inserts the linked status/audit row for a committed report
func (c *Client) InsertReportStatus(remoteID int64, attachmentsExpected, attachmentsUploaded int) (int64, error) {
	return c.create(statusModel, map[string]interface{}{
		"report_id":            remoteID,
		"state":                "submitted",
		"attachments_expected": attachmentsExpected,
		"attachments_uploaded": attachmentsUploaded,
	})
}

// DeleteReport removes a remote report row (keep_local conflict resolution)
func (c *Client) DeleteReport(remoteID int64) error {
	return c.unlink(reportModel, []int64{remoteID})
}

// RecentActivityRanges fetches the bounded recent window of historical
// activity ranges used to rebuild the chainage cache
func (c *Client) RecentActivityRanges(limit int) ([]chainage.RemoteRange, error) {
	rows, err := c.searchRead(rangeModel,
		[]interface{}{},
		[]string{"report_date", "spread", "activity_type", "station_start", "station_end"},
		limit, "report_date desc")
	if err != nil {
		return nil, err
	}

	ranges := make([]chainage.RemoteRange, 0, len(rows))
	for _, row := range rows {
		ranges = append(ranges, chainage.RemoteRange{
			ReportDate:   toString(row["report_date"]),
			Spread:       toString(row["spread"]),
			ActivityType: toString(row["activity_type"]),
			StationStart: toString(row["station_start"]),
			StationEnd:   toString(row["station_end"]),
		})
	}
	return ranges, nil
}

// UserInfo is the remote profile of an authenticated inspector
type UserInfo struct {
	RemoteUID   int64
	InspectorID string
	Email       string
	DisplayName string
	CompanyID   string
	Role        string
}

// AuthenticateUser verifies an inspector's credentials against the remote and
// returns their profile. The call runs with the inspector's own credentials,
// not the integration account's.
func (c *Client) AuthenticateUser(email, password string) (*UserInfo, error) {
	uc := &Client{
		URL:       c.URL,
		Database:  c.Database,
		Username:  email,
		Password:  password,
		CommonURL: c.CommonURL,
		ObjectURL: c.ObjectURL,
	}

	uid, err := uc.Authenticate()
	if err != nil {
		return nil, err
	}
	if uid == 0 {
		return nil, fmt.Errorf("invalid credentials")
	}

	rows, err := uc.searchRead("res.users",
		[]interface{}{[]interface{}{"id", "=", uid}},
		[]string{"id", "login", "name", "inspector_ref", "company_ref", "inspector_role"},
		1, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read user profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("user %d not found after authentication", uid)
	}

	row := rows[0]
	return &UserInfo{
		RemoteUID:   int64(uid),
		InspectorID: toString(row["inspector_ref"]),
		Email:       toString(row["login"]),
		DisplayName: toString(row["name"]),
		CompanyID:   toString(row["company_ref"]),
		Role:        toString(row["inspector_role"]),
	}, nil
}

// Helper functions to convert interface{} values safely

func toInt64(v interface{}) (int64, bool) {
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return val.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(val.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(val.Float()), true
	}
	return 0, false
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
