package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openipc/dvrip-go/internal/archiver"
	"github.com/openipc/dvrip-go/internal/config"
	"github.com/openipc/dvrip-go/internal/logging"
	"github.com/openipc/dvrip-go/internal/sink"
	"github.com/openipc/dvrip-go/pkg/dvrip"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "dvrip-cli",
	Short: "DVRIP device client",
	Long:  "dvrip-cli talks to XMeye-family DVRs/NVRs over the DVRIP protocol: list and download recordings, take snapshots, drive PTZ, and archive footage.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dvrip-cli v%s\n", version)
	},
}

var listFilesCmd = &cobra.Command{
	Use:   "list-files",
	Short: "List recordings in a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		beginTime, _ := cmd.Flags().GetString("begin")
		endTime, _ := cmd.Flags().GetString("end")
		fileType, _ := cmd.Flags().GetString("type")
		channel, _ := cmd.Flags().GetInt("channel")

		return withClient(func(c *dvrip.Client) error {
			files, err := c.ListFiles(beginTime, endTime, fileType, channel)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Printf("%v\n", f)
			}
			fmt.Printf("%d recordings\n", len(files))
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [file-name] [dest-path]",
	Short: "Download one recorded file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		beginTime, _ := cmd.Flags().GetString("begin")
		endTime, _ := cmd.Flags().GetString("end")

		return withClient(func(c *dvrip.Client) error {
			return c.DownloadFile(beginTime, endTime, args[0], args[1])
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [dest-path]",
	Short: "Capture one JPEG snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetInt("channel")
		return withClient(func(c *dvrip.Client) error {
			data, err := c.Snapshot(channel)
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], data, 0o644)
		})
	},
}

var ptzCmd = &cobra.Command{
	Use:   "ptz [direction]",
	Short: "Nudge pan/tilt/zoom in one direction (up/down/left/right/zoomin/zoomout)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetInt("channel")
		speed, _ := cmd.Flags().GetInt("speed")
		dir, err := parsePTZDirection(args[0])
		if err != nil {
			return err
		}
		return withClient(func(c *dvrip.Client) error {
			return c.PTZStep(channel, dir, speed)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Pull new recordings since the last run and archive them to a sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetInt("channel")
		fileType, _ := cmd.Flags().GetString("type")

		return withClient(func(c *dvrip.Client) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dest, err := buildSink(cfg)
			if err != nil {
				return err
			}
			mgr := archiver.NewManager(archiver.Config{
				Source:   c,
				Sink:     dest,
				Channel:  channel,
				FileType: fileType,
				Retention: 0,
				WorkDir:  cfg.DownloadDir,
			})
			job, err := mgr.RunOnce()
			if err != nil {
				return err
			}
			fmt.Printf("archive run %s: status=%s files=%d bytes=%d\n", job.ID, job.Status, job.FilesArchived, job.BytesArchived)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is dvrip.yaml in /etc/dvrip or cwd)")

	listFilesCmd.Flags().String("begin", "2000-01-01 00:00:00", "range start")
	listFilesCmd.Flags().String("end", time.Now().Format("2006-01-02 15:04:05"), "range end")
	listFilesCmd.Flags().String("type", "h264", "file type filter")
	listFilesCmd.Flags().Int("channel", 0, "channel index")

	downloadCmd.Flags().String("begin", "2000-01-01 00:00:00", "range start")
	downloadCmd.Flags().String("end", time.Now().Format("2006-01-02 15:04:05"), "range end")

	snapshotCmd.Flags().Int("channel", 0, "channel index")

	ptzCmd.Flags().Int("channel", 0, "channel index")
	ptzCmd.Flags().Int("speed", 4, "move speed, 1-8")

	archiveCmd.Flags().Int("channel", 0, "channel index")
	archiveCmd.Flags().String("type", "h264", "file type filter")

	rootCmd.AddCommand(versionCmd, listFilesCmd, downloadCmd, snapshotCmd, ptzCmd, archiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withClient loads config, connects, logs in, and runs fn, closing the
// client on the way out regardless of how fn exits.
func withClient(fn func(*dvrip.Client) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, nil)

	client, err := dvrip.New(dvrip.Config{
		Address:        cfg.DeviceAddress,
		User:           cfg.DeviceUser,
		Password:       cfg.DevicePassword,
		Network:        networkFromString(cfg.Network),
		Iface:          cfg.Interface,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(); err != nil {
		return err
	}
	log.Info("connected", "device", cfg.DeviceAddress)
	return fn(client)
}

func buildSink(cfg *config.Config) (sink.Provider, error) {
	switch cfg.BackupProvider {
	case "", "local":
		return sink.NewLocalSink(cfg.BackupLocalDir), nil
	case "s3":
		return sink.NewS3Sink(cmdContext(), cfg.BackupBucket, cfg.BackupRegion, cfg.BackupPrefix)
	case "gcs":
		return sink.NewGCSSink(cmdContext(), cfg.BackupBucket, cfg.BackupPrefix)
	default:
		return nil, fmt.Errorf("unsupported backup provider %q for this command (azblob/b2 need account credentials, wire them directly)", cfg.BackupProvider)
	}
}

func parsePTZDirection(s string) (dvrip.PTZDirection, error) {
	switch s {
	case "up":
		return dvrip.PTZUp, nil
	case "down":
		return dvrip.PTZDown, nil
	case "left":
		return dvrip.PTZLeft, nil
	case "right":
		return dvrip.PTZRight, nil
	case "zoomin":
		return dvrip.PTZZoomIn, nil
	case "zoomout":
		return dvrip.PTZZoomOut, nil
	default:
		return "", fmt.Errorf("unknown ptz direction %q", s)
	}
}
