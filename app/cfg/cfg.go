// Package cfg holds process configuration, loaded once at startup from
// environment variables and command-line flags.
package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/mediahub/postpipe/app/timeutil"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Options is the go-flags option set shared by every subcommand.
type Options struct {
	DatabasePath string `long:"database" env:"DATABASE_PATH" default:"content.db" description:"Path to the sqlite database file"`
	ChannelsFile string `long:"channels" env:"CHANNELS_FILE" default:"channels.yml" description:"Channel configuration file"`

	Timezone string `long:"timezone" env:"SCHEDULE_TZ" default:"Asia/Tokyo" description:"Timezone for schedule input and display"`

	ScreenshotCmd string `long:"screenshot-cmd" env:"SCREENSHOT_CMD" description:"External command invoked as '<cmd> <url> <output-file>' to capture page screenshots"`
	ScreenshotDir string `long:"screenshot-dir" env:"SCREENSHOT_DIR" default:"screenshots" description:"Directory for captured screenshots"`

	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP status server port (serve mode)"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"Access key for the status API (optional)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Serve-mode scheduler interval in seconds"`

	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"postpipe/1.0" description:"User agent string for feed requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Cfg is the resolved configuration available through Get.
type Cfg struct {
	Options

	Zone    *time.Location
	Version string
}

var globalCfg *Cfg

// Resolve validates the parsed options and installs the global config.
func Resolve(opts Options) (*Cfg, error) {
	zone, err := timeutil.LoadZone(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone configuration: %w", err)
	}

	globalCfg = &Cfg{
		Options: opts,
		Zone:    zone,
		Version: GetVersion(),
	}

	return globalCfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Resolve() first")
	}
	return globalCfg
}
