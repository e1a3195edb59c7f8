// Package database provides SQLite persistence for the cloud bridge.
//
// It wraps database/sql with:
//   - Connection management tuned for SQLite (single writer, WAL mode)
//   - Embedded schema migrations applied at startup
//   - Health checks for the system status endpoint
//
// The bridge stores little relational data - primarily the cloud API
// credential record - but keeping the same database layer as the rest of
// the Gray Logic stack means identical operational behaviour (file layout,
// permissions, backup procedure).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/cloudbridge.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
