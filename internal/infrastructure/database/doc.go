// Package database provides the SQLite connection and schema migrations
// shared by the device registry, the state store and the state history.
//
// The connection runs with foreign keys enforced, an optional WAL journal
// and a single open connection, which serialises writers at the driver.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered by the migrations package.
package database
