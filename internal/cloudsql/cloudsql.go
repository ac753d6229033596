// Package cloudsql resolves the Postgres DSN for the snapshot store, either
// from DATABASE_URL or from Cloud SQL unix-socket settings on Cloud Run.
package cloudsql

import (
	"fmt"
	"net/url"
	"os"
)

// BuildDatabaseURL constructs a PostgreSQL connection string from the process
// environment.
//
// For Cloud Run with Cloud SQL set INSTANCE_CONNECTION_NAME, DB_USER, DB_NAME
// and optionally DB_PASSWORD (omit it for IAM authentication).
// For local development set DATABASE_URL directly.
func BuildDatabaseURL() (string, error) {
	return buildDatabaseURL(os.Getenv)
}

func buildDatabaseURL(getenv func(string) string) (string, error) {
	if dbURL := getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}

	user, name := getenv("DB_USER"), getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	// Cloud Run mounts instances at /cloudsql/<INSTANCE_CONNECTION_NAME>.
	socketPath := "/cloudsql/" + instance
	if password := getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, user, password, name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, user, name), nil
}

// Redact hides the password of a postgres:// URL so it can be logged.
// Key/value DSNs are reduced to a fixed marker.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "(key/value dsn)"
	}
	return u.Redacted()
}
