package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	ports "childminder/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{ServiceAccountJSON: "{}"})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", ServiceAccountFile: "/nonexistent/sa.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestAppendSessions_ValidatesBeforeCallingAPI(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Sessions"} // svc is nil

	_, err := c.AppendSessions(context.Background(), []ports.SessionRow{{ChildName: "Ada"}})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}

	ref, err := c.AppendSessions(context.Background(), nil)
	if err != nil || ref != "" {
		t.Errorf("empty batch: ref=%q err=%v", ref, err)
	}

	_, err = c.AppendSessions(context.Background(), []ports.SessionRow{validRow()})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected uninitialized service error, got %v", err)
	}
}

// fakeSheets serves existing rows on reads and records appended ones.
type fakeSheets struct {
	mu       sync.Mutex
	existing [][]any
	appended [][]any
	inputOpt string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.existing})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.appended = append(f.appended, vr.Values...)
		f.inputOpt = r.URL.Query().Get("valueInputOption")
		json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
			Updates: &gsheet.UpdateValuesResponse{UpdatedRange: "Sessions!A2:G3"},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &Client{svc: svc, spreadsheetID: "sheet-id", sheetName: "Sessions"}
}

func validRow() ports.SessionRow {
	return ports.SessionRow{
		InvoiceNumber: "INV-2025-01-ADA",
		ChildName:     "Ada",
		Date:          "2025-01-13",
		Start:         "08:00",
		End:           "17:00",
		Hours:         9,
		Cost:          "45.00",
	}
}

func TestAppendSessions_WritesHeaderOnEmptySheet(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	ref, err := c.AppendSessions(context.Background(), []ports.SessionRow{validRow()})
	if err != nil {
		t.Fatalf("AppendSessions() error = %v", err)
	}
	if ref != "Sessions!A2:G3" {
		t.Errorf("ref = %q", ref)
	}
	if len(fake.appended) != 2 {
		t.Fatalf("appended %d rows, want header + 1", len(fake.appended))
	}
	if fake.appended[0][0] != "Invoice" {
		t.Errorf("first row should be the header, got %v", fake.appended[0])
	}
	if fake.appended[1][0] != "INV-2025-01-ADA" || fake.appended[1][6] != "45.00" {
		t.Errorf("unexpected session row: %v", fake.appended[1])
	}
}

func TestAppendSessions_SkipsExportedSessions(t *testing.T) {
	exported := validRow()
	fake := &fakeSheets{existing: [][]any{
		Header[:4],
		{"INV-2024-12-ADA", exported.ChildName, exported.Date, exported.Start},
	}}
	c := newTestClient(t, fake)

	next := validRow()
	next.Date = "2025-01-14"
	resent := exported
	resent.InvoiceNumber = "INV-2025-02-ADA"

	if _, err := c.AppendSessions(context.Background(), []ports.SessionRow{resent, next, next}); err != nil {
		t.Fatalf("AppendSessions() error = %v", err)
	}
	if len(fake.appended) != 1 || fake.appended[0][2] != "2025-01-14" {
		t.Fatalf("appended = %v, want only the 2025-01-14 session", fake.appended)
	}
	if fake.inputOpt != "RAW" {
		t.Errorf("valueInputOption = %q, want RAW", fake.inputOpt)
	}

	fake.appended = nil
	ref, err := c.AppendSessions(context.Background(), []ports.SessionRow{resent})
	if err != nil || ref != "" || len(fake.appended) != 0 {
		t.Errorf("all-exported batch: ref=%q err=%v appended=%v", ref, err, fake.appended)
	}
}

func TestEnsureHeader(t *testing.T) {
	tests := []struct {
		name     string
		existing [][]any
		want     bool
	}{
		{"empty sheet", nil, true},
		{"sheet with rows", [][]any{Header, {"INV-2025-01-ADA"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSheets{existing: tt.existing}
			c := newTestClient(t, fake)

			wrote, err := c.EnsureHeader(context.Background())
			if err != nil {
				t.Fatalf("EnsureHeader() error = %v", err)
			}
			if wrote != tt.want {
				t.Errorf("wrote = %v, want %v", wrote, tt.want)
			}
			if tt.want && (len(fake.appended) != 1 || fake.appended[0][0] != "Invoice") {
				t.Errorf("appended = %v", fake.appended)
			}
			if !tt.want && len(fake.appended) != 0 {
				t.Errorf("unexpected append: %v", fake.appended)
			}
		})
	}
}

func TestNew_InvalidCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", ServiceAccountJSON: "not json"})
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
