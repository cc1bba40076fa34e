// Command sheets-init checks the service account can reach the session
// export spreadsheet and writes the header row of an empty sheet.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"childminder/internal/cli"
	"childminder/internal/config"
	gsheet "childminder/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	if !cfg.SheetsEnabled() {
		log.Fatalf("set GOOGLE_SPREADSHEET_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		log.Fatalf("sheets client: %v", err)
	}

	wrote, err := client.EnsureHeader(ctx)
	if err != nil {
		log.Fatalf("check sheet %s: %v", cfg.GoogleSheetName, err)
	}
	if wrote {
		fmt.Printf("Wrote header to %s!A1\n", cfg.GoogleSheetName)
		return
	}
	fmt.Printf("Sheet %s is reachable and already has rows\n", cfg.GoogleSheetName)
}
