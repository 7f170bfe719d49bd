package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/reporter"
	"github.com/dreamup/touchbot/internal/scanner"
	"github.com/dreamup/touchbot/internal/shop"
)

var (
	scanDirection string
	scanTypes     []string
	reportPath    string
	reportUpload  bool
	openFirst     bool
	sellQuantity  int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Page through the shop and report every slot",
	RunE:  runScan,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect the coins of every sold shop slot",
	RunE:  runCollect,
}

var sellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Collect sold slots, list wheat in open slots and advertise",
	RunE:  runSell,
}

func init() {
	scanCmd.Flags().StringVar(&scanDirection, "direction", "forward", "Scan direction (forward, backward)")
	scanCmd.Flags().StringSliceVar(&scanTypes, "types", nil, "Slot types to report (sold, open, occupied; default all)")

	for _, c := range []*cobra.Command{scanCmd, collectCmd, sellCmd} {
		c.Flags().StringVarP(&reportPath, "report", "r", "", "Write the JSON report to this file")
		c.Flags().BoolVar(&reportUpload, "upload", false, "Upload the report to S3")
	}
	collectCmd.Flags().BoolVar(&openFirst, "open", false, "Tap the roadside shop on the farm first")
	sellCmd.Flags().IntVarP(&sellQuantity, "quantity", "q", 0, "Quantity plus presses per sale (default: shop.quantity from config)")
}

func parseDirection(s string) (scanner.Direction, error) {
	switch s {
	case "", "forward":
		return scanner.Forward, nil
	case "backward":
		return scanner.Backward, nil
	}
	return scanner.Forward, fmt.Errorf("unknown direction %q", s)
}

func runScan(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(scanDirection)
	if err != nil {
		return err
	}
	var types []scanner.SlotType
	for _, name := range scanTypes {
		st, err := scanner.ParseSlotType(name)
		if err != nil {
			return err
		}
		types = append(types, st)
	}

	r := newRig(cfg)
	_, sc, err := r.newShop(cfg)
	if err != nil {
		return err
	}

	rb := reporter.NewReportBuilder("scan")
	rb.AddMetadata("direction", dir.String())
	return journaled("scan", dir.String(), func() (any, error) {
		scan := sc.Scan(dir, types...)
		var scanErr error
		for page, err := range scan.Pages(cmd.Context()) {
			if err != nil {
				scanErr = err
				break
			}
			rb.AddPage(page)
			logger.Info().Int("page", page.Index).Int("slots", len(page.Slots)).Msg("Page scanned")
		}
		rb.SetError(scanErr)
		return finishReport(cmd, r, rb, scanErr)
	})
}

func runCollect(cmd *cobra.Command, args []string) error {
	r := newRig(cfg)
	sh, _, err := r.newShop(cfg)
	if err != nil {
		return err
	}

	rb := reporter.NewReportBuilder("collect")
	return journaled("collect", "", func() (any, error) {
		var err error
		if openFirst {
			err = sh.OpenShop(cmd.Context())
		}
		collected := 0
		if err == nil {
			collected, err = sh.CollectSold(cmd.Context())
		}
		rb.SetShopSummary(shop.Summary{Collected: collected})
		rb.SetError(err)
		fmt.Fprintf(cmd.OutOrStdout(), "💰 Collected %d sold slots\n", collected)
		return finishReport(cmd, r, rb, err)
	})
}

func runSell(cmd *cobra.Command, args []string) error {
	quantity := sellQuantity
	if quantity <= 0 {
		quantity = cfg.SellQuantity
	}

	r := newRig(cfg)
	sh, _, err := r.newShop(cfg)
	if err != nil {
		return err
	}

	rb := reporter.NewReportBuilder("sell")
	return journaled("sell", "wheat", func() (any, error) {
		summary, err := sh.SellPending(cmd.Context(), quantity)
		rb.SetShopSummary(summary)
		rb.SetError(err)
		fmt.Fprintf(cmd.OutOrStdout(), "🛒 collected=%d listed=%d advertised=%v\n", summary.Collected, summary.Listed, summary.Advertised)
		return finishReport(cmd, r, rb, err)
	})
}

// finishReport keeps a frame of the screen when runErr is set, writes the
// report where the flags ask and returns its summary as the run detail,
// keeping runErr as the outcome.
func finishReport(cmd *cobra.Command, r *rig, rb *reporter.ReportBuilder, runErr error) (any, error) {
	ctx := context.WithoutCancel(cmd.Context())
	if runErr != nil {
		snap, err := reporter.CaptureSnapshot(ctx, r.frames, reporter.ContextFailure)
		if err == nil {
			err = snap.SaveToTemp()
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Failure snapshot not kept")
		} else {
			rb.AddSnapshot(snap)
			logger.Info().Str("path", snap.Filepath).Msg("Failure snapshot saved")
		}
	}
	report := rb.Build()

	var errs []error
	errs = append(errs, runErr)

	if reportPath != "" {
		if err := report.SaveToFile(reportPath); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "📁 Report saved to %s\n", reportPath)
		}
	} else if runErr == nil {
		printSlotCounts(cmd.OutOrStdout(), report)
	}

	if reportUpload {
		uploader, err := newUploader(ctx)
		if err == nil {
			var url string
			url, err = uploader.UploadReportWithSnapshots(ctx, report, rb.Snapshots())
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "☁️  Report uploaded to %s\n", url)
			}
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Report upload failed")
		}
	}

	return map[string]any{
		"report_id": report.ReportID,
		"summary":   report.Summary,
		"counts":    report.SlotCounts,
	}, errors.Join(errs...)
}

func printSlotCounts(w io.Writer, report *reporter.Report) {
	fmt.Fprintf(w, "📋 %d pages, status %s\n", report.Summary.Pages, report.Summary.Status)
	for _, st := range scanner.AllSlotTypes {
		fmt.Fprintf(w, "   %-9s %d\n", st.String(), report.SlotCounts[st.String()])
	}
}
