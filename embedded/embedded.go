package embedded

import _ "embed"

// Database migrations.

// DBMigration1x0 is the initial database setup with player progress and match
// history.
//
//go:embed sql/1x0.sql
var DBMigration1x0 string

//go:embed sql/1x1.sql
var DBMigration1x1 string
