// Package database opens the SQLite file behind the keyed store and applies
// schema migrations.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx, migrations.Source())
//
// The file is created with mode 0600. Statements are always parameterised.
// Migrations only add: each .up.sql ships with a .down.sql, and new columns
// are nullable or carry a default.
package database
