package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/openrumor/veracity/src/veracity"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Veracity node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runVeracity,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runVeracity(cmd *cobra.Command, args []string) error {
	addLogHooks(_config.Logger().Logger)

	engine := veracity.NewVeracity(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	// Close the store cleanly on SIGINT or SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		engine.Shutdown()
		os.Exit(0)
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Do not serve the HTTP API")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Engine thresholds
	cmd.Flags().Float64("verify-threshold", _config.VerifyThreshold, "Truth score above which a claim locks verified")
	cmd.Flags().Float64("dispute-threshold", _config.DisputeThreshold, "Truth score below which a claim locks disputed")
	cmd.Flags().Int("min-votes", _config.MinVotes, "Min number of votes before a claim may lock")
	cmd.Flags().Float64("min-weight", _config.MinWeight, "Min credibility weight before a claim may lock")

	// Rate limits
	cmd.Flags().Duration("min-vote-interval", _config.MinVoteInterval, "Min delay between two votes by one identity")
	cmd.Flags().Int("hourly-vote-limit", _config.HourlyVoteLimit, "Max votes per identity per hour")
	cmd.Flags().Int("daily-vote-limit", _config.DailyVoteLimit, "Max votes per identity per day")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":          _config.DataDir,
		"LogLevel":         _config.LogLevel,
		"ServiceAddr":      _config.ServiceAddr,
		"NoService":        _config.NoService,
		"Store":            _config.Store,
		"VerifyThreshold":  _config.VerifyThreshold,
		"DisputeThreshold": _config.DisputeThreshold,
		"MinVotes":         _config.MinVotes,
		"MinWeight":        _config.MinWeight,
		"MinVoteInterval":  _config.MinVoteInterval,
		"HourlyVoteLimit":  _config.HourlyVoteLimit,
		"DailyVoteLimit":   _config.DailyVoteLimit,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/veracity.toml (.json, .yaml also work)
	viper.SetConfigName("veracity")     // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addLogHooks mirrors info and debug output to log files in the working
// directory.
func addLogHooks(logger *logrus.Logger) {
	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("veracity_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open veracity_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "veracity_info.log"
	}

	_, err = os.OpenFile("veracity_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open veracity_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "veracity_debug.log"
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
