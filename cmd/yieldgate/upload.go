package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/hjagadishkumar/alfalfa-yield/internal/aggregate"
	"github.com/hjagadishkumar/alfalfa-yield/internal/client"
	"github.com/hjagadishkumar/alfalfa-yield/internal/config"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// slotFlags maps each multi-file flag to its slot
var slotFlags = []struct {
	flag string
	slot models.SlotName
}{
	{"target", models.SlotTarget},
	{"boost", models.SlotBoost},
	{"all-years", models.SlotAllYears},
	{"final-year", models.SlotFinalYear},
	{"target-year", models.SlotTargetYear},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Submit files to a running gateway",
	Long: `Submit either one model file for analysis (--file) or the five
dataset files for a yield prediction (--target, --boost, --all-years,
--final-year, --target-year). Paths may also come from a YAML manifest;
flags win over manifest entries. The result is printed as JSON.`,
	Example: `  yieldgate upload --file model.pkl
  yieldgate upload --target t.csv --boost b.csv --all-years a.csv --final-year f.csv --target-year y.csv
  yieldgate upload --manifest season.yaml`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("gateway", "http://127.0.0.1:8080", "Gateway base URL")
	uploadCmd.Flags().String("file", "", "Single file for analysis")
	uploadCmd.Flags().String("manifest", "", "YAML file listing the gateway and file paths")
	for _, sf := range slotFlags {
		uploadCmd.Flags().String(sf.flag, "", fmt.Sprintf("Path for %s", sf.slot))
	}
	uploadCmd.Flags().Duration("request-timeout", 0, "Request timeout (overrides YIELD_REQUEST_TIMEOUT)")
	viper.BindPFlag("request_timeout", uploadCmd.Flags().Lookup("request-timeout"))
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gatewayURL, _ := cmd.Flags().GetString("gateway")
	file, _ := cmd.Flags().GetString("file")
	manifestPath, _ := cmd.Flags().GetString("manifest")

	paths := make(map[models.SlotName]string)
	if manifestPath != "" {
		m, err := loadManifest(manifestPath)
		if err != nil {
			return err
		}
		if m.Gateway != "" && !cmd.Flags().Changed("gateway") {
			gatewayURL = m.Gateway
		}
		if file == "" {
			file = m.File
		}
		for name, p := range m.Slots {
			paths[models.SlotName(name)] = p
		}
	}
	for _, sf := range slotFlags {
		if p, _ := cmd.Flags().GetString(sf.flag); p != "" {
			paths[sf.slot] = p
		}
	}

	if file != "" && len(paths) > 0 {
		return fmt.Errorf("--file cannot be combined with slot flags")
	}
	if file == "" && len(paths) == 0 {
		return fmt.Errorf("nothing to upload: pass --file or the five slot flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(client.Options{
		BaseURL:        gatewayURL,
		RequestTimeout: cfg.RequestTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
	})

	var out []byte
	if file != "" {
		metrics, err := c.UploadFile(ctx, file)
		if err != nil {
			return err
		}
		if out, err = aggregate.SerializeMetrics(metrics); err != nil {
			return err
		}
	} else {
		result, err := c.UploadSlots(ctx, paths)
		if err != nil {
			return err
		}
		if out, err = aggregate.Serialize(result); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
