// Package all registers every storage backend with the factory.
//
// Import it for side effects from binaries that select the backend at
// runtime via configuration.
package all

import (
	_ "musicetl/internal/storage/mssql"
	_ "musicetl/internal/storage/postgres"
	_ "musicetl/internal/storage/sqlite"
)
