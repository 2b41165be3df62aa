package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/mosaic/internal/config"
	"github.com/kiesman99/mosaic/internal/logging"
	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/internal/stitch"
	"github.com/kiesman99/mosaic/pkg/tile"
)

var (
	cfgFile string
	version = "1.0.0"

	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "mosaic",
	Short:   "Retrieve the deepest complete aerial mosaic between two points",
	Version: version,
	Long: `mosaic downloads quadkey addressed aerial tiles covering the rectangle
spanned by two geographic points and stitches them into one image.

It starts at the deepest zoom level where the tiles under both points exist
and steps out one level whenever a tile inside the rectangle is missing, so
the result is the most detailed mosaic the tile server can fully cover.

Examples:
  # Retrieve the default block of downtown Chicago
  mosaic

  # Two explicit corners with a preview and world file
  mosaic --lat1 40.714550 --lon1 -74.007124 --lat2 40.715550 --lon2 -74.009124 \
    --preview result/preview.jpeg --worldfile

  # Same area as a bounding box, quiet output
  mosaic --bbox 40.714550,-74.007124,40.715550,-74.009124 --release

  # Start HTTP server
  mosaic serve --port 8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := viper.GetString("log.level")
		if viper.GetBool("release") {
			level = log.WarnLevel.String()
		}

		closer, err := logging.Setup(level, viper.GetString("log.file"))
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	RunE: runRetrieve,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mosaic.yaml)")
	pf.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	pf.String("log-file", "", "also append log output to this file")

	// Tile provider, shared with serve
	pf.StringP("url", "u", provider.DefaultURL, "tile URL template, {q} is the quadkey and {s} the server shard")
	pf.String("user-agent", provider.DefaultUserAgent, "HTTP User-Agent header")
	pf.String("sentinel", "", "image the server returns in place of missing tiles")
	pf.Float64("threshold", provider.DefaultThreshold, "mean pixel difference below which a tile matches the sentinel")
	pf.Duration("tile-timeout", 30*time.Second, "timeout for a single tile request")
	pf.Int("retries", 3, "retries for a failing tile request before it counts as missing")
	pf.StringSlice("backoff", []string{"250ms", "1s", "2s"}, "wait between retries, the last value repeats")
	pf.Bool("fatal-errors", false, "abort on tile server errors instead of treating them as missing tiles")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.file", pf.Lookup("log-file"))
	viper.BindPFlag("provider.url", pf.Lookup("url"))
	viper.BindPFlag("provider.user-agent", pf.Lookup("user-agent"))
	viper.BindPFlag("provider.sentinel", pf.Lookup("sentinel"))
	viper.BindPFlag("provider.threshold", pf.Lookup("threshold"))
	viper.BindPFlag("provider.timeout", pf.Lookup("tile-timeout"))
	viper.BindPFlag("provider.retries", pf.Lookup("retries"))
	viper.BindPFlag("provider.backoff", pf.Lookup("backoff"))
	viper.BindPFlag("provider.fatal-errors", pf.Lookup("fatal-errors"))

	// Corner points
	f := rootCmd.Flags()
	f.String("lat1", config.DefaultLat1, "latitude of the first point")
	f.String("lon1", config.DefaultLon1, "longitude of the first point")
	f.String("lat2", config.DefaultLat2, "latitude of the second point")
	f.String("lon2", config.DefaultLon2, "longitude of the second point")
	f.String("bbox", "", "both points as 'lat1,lon1,lat2,lon2', overrides the single flags")

	// Zoom search
	f.Int("max-zoom", tile.MaxZoom, "deepest zoom level to try")
	f.Int("min-zoom", 1, "shallowest zoom level to fall back to")

	// Output options
	f.StringP("output", "o", "result/mosaic.jpeg", "output file (.jpeg, .jpg or .png)")
	f.String("preview", "", "also write a downscaled copy to this file")
	f.Int("preview-height", 512, "height of the preview in pixels")
	f.BoolP("worldfile", "w", false, "write a world file next to the output")
	f.String("summary", "", "write a YAML summary of the retrieval to this file")
	f.Bool("release", false, "quiet mode: no progress, no corner tiles, warnings only")

	for _, name := range []string{
		"lat1", "lon1", "lat2", "lon2", "bbox", "max-zoom", "min-zoom",
		"output", "preview", "preview-height", "worldfile", "summary", "release",
	} {
		viper.BindPFlag(name, f.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mosaic" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mosaic")
	}

	// MOSAIC_PROVIDER_URL sets provider.url
	viper.SetEnvPrefix("MOSAIC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress io.Writer
	if !cfg.Release {
		progress = cmd.ErrOrStderr()
	}

	runner, err := stitch.NewRunner(cfg, nil, log.StandardLogger(), progress)
	if err != nil {
		return err
	}

	res, out, err := runner.Run(ctx)
	if err != nil {
		log.WithError(err).Error("retrieval failed")
		return err
	}

	cols, rows := res.Mosaic.Grid.Columns(), res.Mosaic.Grid.Rows()
	fmt.Fprintf(cmd.OutOrStdout(), "zoom %d, %dx%d tiles, %d attempt(s): %s\n",
		res.Zoom, cols, rows, res.Attempts, out.Mosaic)
	if out.Preview != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "preview: %s\n", out.Preview)
	}
	return nil
}
