package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/fingerprint"
)

func newFingerprintCommand(ctx *commandContext) *cobra.Command {
	fpCmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Generate and verify content-identity fingerprints",
	}

	fpCmd.AddCommand(newFingerprintGenerateCommand(ctx))
	fpCmd.AddCommand(newFingerprintVerifyCommand(ctx))

	return fpCmd
}

func newFingerprintGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <job-id> <content-file>",
		Short: "Mint a fingerprint for a completed job's canonical content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read content file: %w", err)
			}
			return ctx.withServices(func(app *appServices) error {
				fp, err := app.fingerprints.Generate(cmd.Context(), jobID, content)
				if err != nil {
					return err
				}
				return writeJSON(cmd, fp)
			})
		},
	}
}

func newFingerprintVerifyCommand(ctx *commandContext) *cobra.Command {
	var fingerprintID, contentHash, quickScan, fingerprintFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify content identity against registered fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := fingerprint.Request{
				FingerprintID: fingerprintID,
				ContentHash:   contentHash,
				QuickScan:     quickScan,
			}
			if fingerprintFile != "" {
				raw, err := os.ReadFile(fingerprintFile)
				if err != nil {
					return fmt.Errorf("read fingerprint file: %w", err)
				}
				var fp fingerprint.Fingerprint
				if err := json.Unmarshal(raw, &fp); err != nil {
					return fmt.Errorf("decode fingerprint file: %w", err)
				}
				req.Fingerprint = &fp
			}
			return ctx.withServices(func(app *appServices) error {
				cert, err := app.fingerprints.Verify(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, cert)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status:      %s\n", cert.Status)
				fmt.Fprintf(out, "Method:      %s\n", cert.Method)
				if cert.FingerprintID != "" {
					fmt.Fprintf(out, "Fingerprint: %s\n", cert.FingerprintID)
				}
				if cert.Provenance != nil {
					fmt.Fprintf(out, "Provenance:  job %d, org %s, file %s\n",
						cert.Provenance.JobID, cert.Provenance.OrgID, cert.Provenance.FileName)
				}
				if cert.Detail != "" {
					fmt.Fprintf(out, "Detail:      %s\n", cert.Detail)
				}
				fmt.Fprintf(out, "Transaction: %s\n", cert.TransactionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fingerprintID, "id", "", "Verify by fingerprint id")
	cmd.Flags().StringVar(&contentHash, "content-hash", "", "Verify by strong content hash")
	cmd.Flags().StringVar(&quickScan, "quick-scan", "", "Triage by quick-scan digest")
	cmd.Flags().StringVar(&fingerprintFile, "fingerprint-file", "", "Deep-verify a full fingerprint JSON document")
	return cmd
}
