package util

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/common"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/relational/restclient"
	"github.com/ValentinKolb/kiln/lib/relational/sqlclient"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/instrumented"
	"github.com/ValentinKolb/kiln/lib/store/lstore"
	"github.com/ValentinKolb/kiln/lib/store/migrate"
	"github.com/ValentinKolb/kiln/lib/store/rstore"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

var log = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags selecting and configuring the store backend to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, string(common.BackendLocal), WrapString("The storage backend (local, remote)"))

	key = "namespace"
	cmd.PersistentFlags().String(key, lstore.DefaultNamespace, WrapString("Key prefix of the local backend"))

	key = "data-file"
	cmd.PersistentFlags().String(key, "kiln.db", WrapString("Snapshot file of the local backend. It is loaded on start and written after every command"))

	key = "quota"
	cmd.PersistentFlags().Int(key, 5*1024*1024, WrapString("Size limit of the local backend in bytes (0 = unlimited)"))

	key = "remote-driver"
	cmd.PersistentFlags().String(key, common.DriverSQLite, WrapString("Driver of the remote backend (sqlite, sqlite3, rest)"))

	key = "remote-endpoint"
	cmd.PersistentFlags().String(key, "kiln-remote.db", WrapString("Database file for the sqlite drivers, base URL for the rest driver"))

	key = "remote-credential"
	cmd.PersistentFlags().String(key, "", WrapString("API key of the rest driver"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, rstore.DefaultTimeoutSecond, WrapString("The timeout in seconds of a single remote operation"))

	key = "auto-migrate"
	cmd.PersistentFlags().Bool(key, false, WrapString("Migrate legacy data of the local data file before running the command"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the collected store metrics (Prometheus format) after the command"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kiln")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() *common.StoreConfig {
	return &common.StoreConfig{
		Backend:    common.Backend(viper.GetString("backend")),
		Namespace:  viper.GetString("namespace"),
		DataFile:   viper.GetString("data-file"),
		QuotaBytes: viper.GetInt("quota"),
		Remote: common.RemoteConfig{
			Driver:        viper.GetString("remote-driver"),
			Endpoint:      viper.GetString("remote-endpoint"),
			Credential:    viper.GetString("remote-credential"),
			TimeoutSecond: viper.GetInt("timeout"),
		},
		LogLevel: viper.GetString("log-level"),
		Metrics:  viper.GetBool("metrics"),
	}
}

// --------------------------------------------------------------------------
// Composition Root
// --------------------------------------------------------------------------

// Prepare binds the flags of cmd, initializes the loggers and opens the store.
// With --auto-migrate the legacy migration runs before the store is returned.
func Prepare(cmd *cobra.Command) (*Handle, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return nil, err
	}

	h, err := OpenStore(GetStoreConfig())
	if err != nil {
		return nil, err
	}

	if viper.GetBool("auto-migrate") {
		report, err := h.Migrate(migrate.Config{})
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("legacy migration failed: %w", err)
		}
		if !report.AlreadyDone {
			log.Infof("legacy migration done: %v", report.Migrated)
		}
	}
	return h, nil
}

// Handle owns the single store of the process and the resources behind it.
type Handle struct {
	Store  store.IStore
	Config *common.StoreConfig

	metrics  instrumented.Store
	local    db.KVDB           // medium of the local backend (nil for remote)
	client   relational.Client // client of the remote backend (nil for local)
	modified bool
}

// OpenStore builds the store selected by conf. It is called exactly once per command.
func OpenStore(conf *common.StoreConfig) (*Handle, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	h := &Handle{Config: conf}
	switch conf.Backend {
	case common.BackendLocal:
		database, err := OpenLocalFile(conf.DataFile, conf.QuotaBytes)
		if err != nil {
			return nil, err
		}
		h.local = database
		h.Store = lstore.NewLocalStore(database, lstore.Config{Namespace: conf.Namespace})

	case common.BackendRemote:
		client, err := OpenRemoteClient(conf.Remote)
		if err != nil {
			return nil, err
		}
		h.client = client
		h.Store = rstore.NewRemoteStore(client, rstore.Config{
			Schemas:       model.Schemas,
			Tables:        model.Tables,
			Collections:   model.Collections,
			TimeoutSecond: conf.Remote.TimeoutSecond,
		})
	}

	if conf.Metrics {
		h.metrics = instrumented.New(h.Store, string(conf.Backend))
		h.Store = h.metrics
	}
	log.Debugf("opened %s store", conf.Backend)
	return h, nil
}

// OpenLocalFile creates a maple medium and loads the snapshot at path into it (if present).
func OpenLocalFile(path string, quotaBytes int) (db.KVDB, error) {
	database := maple.NewMapleDB(&maple.DBOptions{QuotaBytes: quotaBytes})
	loaded, err := db.LoadFile(database, path)
	if err != nil {
		return nil, err
	}
	if loaded {
		log.Debugf("loaded %d keys from %s", database.GetInfo().Keys, path)
	}
	return database, nil
}

// OpenRemoteClient connects the relational client of the configured driver.
func OpenRemoteClient(conf common.RemoteConfig) (relational.Client, error) {
	switch conf.Driver {
	case common.DriverSQLite, common.DriverSQLiteCgo:
		return sqlclient.Open(conf.Driver, conf.Endpoint)
	case common.DriverREST:
		return restclient.New(conf.Endpoint, conf.Credential, time.Duration(conf.TimeoutSecond)*time.Second)
	default:
		return nil, fmt.Errorf("invalid remote driver %s", conf.Driver)
	}
}

// CreateTables creates the studio tables if the remote backend is a SQL database.
func (h *Handle) CreateTables() error {
	client, ok := h.client.(*sqlclient.Client)
	if !ok {
		return fmt.Errorf("tables can only be created for the sql drivers (got %s)", h.Config.Remote.Driver)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.Config.Remote.TimeoutSecond)*time.Second)
	defer cancel()
	return client.CreateTables(ctx, model.Schemas, model.Tables)
}

// Migrate runs the legacy migration from the local data file into the store.
func (h *Handle) Migrate(conf migrate.Config) (migrate.Report, error) {
	conf.Namespace = h.Config.Namespace
	if conf.Collections == nil {
		conf.Collections = model.Collections
	}
	if conf.Schemas == nil {
		conf.Schemas = model.Schemas
	}

	// the local backend keeps the legacy keys in its own medium
	legacy := h.local
	if legacy == nil {
		var err error
		if legacy, err = OpenLocalFile(h.Config.DataFile, 0); err != nil {
			return migrate.Report{}, err
		}
	}

	report, err := migrate.Run(legacy, h.Store, conf)
	if err != nil {
		return report, err
	}
	if !report.AlreadyDone {
		h.MarkModified()
		if h.local == nil {
			if err := db.SaveFile(legacy, h.Config.DataFile); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// MarkModified tells Close to persist the local medium.
func (h *Handle) MarkModified() {
	h.modified = true
}

// Close persists the local medium (if it was modified), prints metrics if enabled and releases all resources.
func (h *Handle) Close() error {
	if h.metrics != nil {
		fmt.Fprintln(os.Stderr)
		h.metrics.WritePrometheus(os.Stderr)
	}

	if h.local != nil {
		if h.modified {
			if err := db.SaveFile(h.local, h.Config.DataFile); err != nil {
				return err
			}
		}
		return h.local.Close()
	}
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}
