package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "childminder/internal/sheets"

	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is written above the first exported row of an empty sheet.
var Header = []any{"Invoice", "Child", "Date", "Start", "End", "Hours", "Cost"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.SessionExporter = (*Client)(nil)

// Config selects the spreadsheet and the service account used to write to it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Sessions"
	}

	credentialsJSON, err := serviceAccountCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	creds, err := oauthgoogle.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", spreadsheetID,
		"sheet", sheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// serviceAccountCredentials prefers inline JSON, then the file path, then
// GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case path != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendSessions appends the rows whose session is not already in the sheet,
// writing the header first when the sheet is empty. It returns "" when every
// row was already exported.
func (c *Client) AppendSessions(ctx context.Context, rows []ports.SessionRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return "", fmt.Errorf("validation failed for row %d: %w", i, err)
		}
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	existing, err := c.read(ctx, "A:D")
	if err != nil {
		return "", err
	}
	exported := make(map[string]bool, len(existing))
	for _, row := range existing {
		if len(row) >= 4 {
			exported[ports.SessionKey(fmt.Sprint(row[1]), fmt.Sprint(row[2]), fmt.Sprint(row[3]))] = true
		}
	}

	fresh := ports.Unexported(rows, exported)
	if len(fresh) == 0 {
		return "", nil
	}
	values := sessionValues(fresh)
	if len(existing) == 0 {
		values = append([][]any{Header}, values...)
	}
	return c.append(ctx, values)
}

// EnsureHeader writes the header row when the sheet is still empty. It
// reports whether a header was written.
func (c *Client) EnsureHeader(ctx context.Context) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}
	empty, err := c.isEmpty(ctx)
	if err != nil || !empty {
		return false, err
	}
	if _, err := c.append(ctx, [][]any{Header}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) isEmpty(ctx context.Context) (bool, error) {
	values, err := c.read(ctx, "A:A")
	return len(values) == 0, err
}

// read returns the used rows of columns cols, for example "A:D".
func (c *Client) read(ctx context.Context, cols string) ([][]any, error) {
	rng := fmt.Sprintf("%s!%s", c.sheetName, cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", c.sheetName, err)
	}
	return resp.Values, nil
}

func (c *Client) append(ctx context.Context, values [][]any) (string, error) {
	// RAW keeps dates and times as text so later exports can match them.
	vr := &gsheet.ValueRange{Values: values}
	appended, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:G", c.sheetName), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := ""
	if appended.Updates != nil {
		ref = appended.Updates.UpdatedRange
	}
	return ref, nil
}

func sessionValues(rows []ports.SessionRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.InvoiceNumber, r.ChildName, r.Date, r.Start, r.End, r.Hours, r.Cost})
	}
	return out
}
