package common

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// Backend selects the storage adapter of the process.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Remote drivers
const (
	DriverSQLite    = "sqlite"  // modernc.org/sqlite
	DriverSQLiteCgo = "sqlite3" // github.com/mattn/go-sqlite3
	DriverREST      = "rest"    // hosted relational service over HTTP
)

// RemoteConfig holds the connection parameters of the remote backend.
type RemoteConfig struct {
	Driver        string // One of DriverSQLite, DriverSQLiteCgo, DriverREST
	Endpoint      string // DSN for SQL drivers, base URL for the REST driver
	Credential    string // API key of the REST driver
	TimeoutSecond int    // Deadline of a single store operation
}

// StoreConfig holds every parameter needed to construct the store of the process.
type StoreConfig struct {
	// Backend is the adapter used for the whole lifetime of the process
	Backend Backend

	// local backend
	Namespace  string
	DataFile   string
	QuotaBytes int

	// remote backend
	Remote RemoteConfig

	// Logging configuration
	LogLevel string

	// print collected metrics after a command
	Metrics bool
}

// Validate checks the configuration and returns every problem found.
func (c *StoreConfig) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendLocal:
		if c.Namespace == "" {
			errs = append(errs, errors.New("namespace must not be empty"))
		}
		if strings.Contains(c.Namespace, ":") {
			errs = append(errs, fmt.Errorf("namespace %q must not contain ':'", c.Namespace))
		}
		if c.QuotaBytes < 0 {
			errs = append(errs, fmt.Errorf("quota must not be negative (got %d)", c.QuotaBytes))
		}
	case BackendRemote:
		switch c.Remote.Driver {
		case DriverSQLite, DriverSQLiteCgo:
			if c.Remote.Endpoint == "" {
				errs = append(errs, errors.New("remote endpoint (database file) must be set"))
			}
		case DriverREST:
			if c.Remote.Endpoint == "" {
				errs = append(errs, errors.New("remote endpoint (base URL) must be set"))
			}
			if c.Remote.Credential == "" {
				errs = append(errs, errors.New("remote credential must be set for the rest driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid remote driver %q (must be one of %s, %s, %s)",
				c.Remote.Driver, DriverSQLite, DriverSQLiteCgo, DriverREST))
		}
		if c.Remote.TimeoutSecond <= 0 {
			errs = append(errs, fmt.Errorf("remote timeout must be positive (got %d)", c.Remote.TimeoutSecond))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend %q (must be %s or %s)", c.Backend, BackendLocal, BackendRemote))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Backend", string(c.Backend))

	switch c.Backend {
	case BackendLocal:
		addSection("Local Backend")
		addField("Namespace", c.Namespace)
		addField("Data File", c.DataFile)
		if c.QuotaBytes == 0 {
			addField("Quota", "unlimited")
		} else {
			addField("Quota", fmt.Sprintf("%d bytes", c.QuotaBytes))
		}
	case BackendRemote:
		addSection("Remote Backend")
		addField("Driver", c.Remote.Driver)
		addField("Endpoint", c.Remote.Endpoint)
		if c.Remote.Credential != "" {
			addField("Credential", "********")
		}
		addField("Timeout", fmt.Sprintf("%d sec", c.Remote.TimeoutSecond))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Metrics", fmt.Sprintf("%t", c.Metrics))

	return sb.String()
}
