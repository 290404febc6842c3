package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"gni.dev/dlvdap/internal/dbg/dap"
	"gni.dev/dlvdap/internal/dbg/debugger"
	"gni.dev/dlvdap/internal/dbg/delve"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "dlvdap"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	envPrefix = "DLVDAP"

	verboseFlagName = "verbose"
	logFileFlagName = "log-file"
	portFlagName    = "port"

	backendPathKey           = "backend.path"
	backendHostKey           = "backend.host"
	backendPortKey           = "backend.port"
	backendAPIVersionKey     = "backend.api_version"
	backendConnectTimeoutKey = "backend.connect_timeout"
	backendBuildFlagsKey     = "backend.build_flags"

	stopOnEntryKey  = "launch.stop_on_entry"
	resetHandlesKey = "session.reset_handles_on_resume"

	dapPortKey          = "dap.port"
	dapQueueSizeKey     = "dap.queue_size"
	dapForwardOutputKey = "dap.forward_output"

	defaultDAPPort       = 0
	defaultStopOnEntry   = false
	defaultResetHandles  = false
	defaultForwardOutput = true

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".dlvdap.log"
	defaultLogLevel      = "info"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// configErr holds the failure to load dlvdap.yaml; commands refuse to run
// with a configuration that could not be read.
var configErr error

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()
	configErr = readConfig()
}

// readConfig merges dlvdap.yaml into the settings. Having no file is fine.
func readConfig() error {
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config %s: %w", viper.ConfigFileUsed(), err)
}

func setDefaults() {
	viper.SetDefault(configVersionKey, currentConfigVersion)

	viper.SetDefault(backendPathKey, delve.DefaultPath)
	viper.SetDefault(backendHostKey, delve.DefaultHost)
	viper.SetDefault(backendPortKey, delve.DefaultPort)
	viper.SetDefault(backendAPIVersionKey, delve.DefaultAPIVersion)
	viper.SetDefault(backendConnectTimeoutKey, delve.DefaultConnectTimeout.String())
	viper.SetDefault(backendBuildFlagsKey, "")

	viper.SetDefault(stopOnEntryKey, defaultStopOnEntry)
	viper.SetDefault(resetHandlesKey, defaultResetHandles)

	viper.SetDefault(dapPortKey, defaultDAPPort)
	viper.SetDefault(dapQueueSizeKey, dap.DefaultQueueSize)
	viper.SetDefault(dapForwardOutputKey, defaultForwardOutput)

	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// sessionConfig builds the DAP session settings from the effective
// configuration.
func sessionConfig(logger *slog.Logger) dap.Config {
	return dap.Config{
		QueueSize:     viper.GetInt(dapQueueSizeKey),
		ForwardOutput: viper.GetBool(dapForwardOutputKey),
		Logger:        logger,
		Debugger: debugger.Config{
			Backend: delve.Options{
				Path:           viper.GetString(backendPathKey),
				Host:           viper.GetString(backendHostKey),
				Port:           viper.GetInt(backendPortKey),
				APIVersion:     viper.GetInt(backendAPIVersionKey),
				ConnectTimeout: viper.GetDuration(backendConnectTimeoutKey),
				BuildFlags:     viper.GetString(backendBuildFlagsKey),
			},
			StopOnEntry:          viper.GetBool(stopOnEntryKey),
			ResetHandlesOnResume: viper.GetBool(resetHandlesKey),
		},
	}
}
