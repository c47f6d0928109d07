package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bitfantasy/nimo-mis/internal/mis/ingest"
	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var (
		file      string
		format    string
		attachDir string
		batchID   string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a cost spreadsheet or CSV file",
		Example: `  mis import --file costs.xlsx
  mis import --file costs.csv --attachments ./docs --batch 2024-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			f, err := resolveFormat(format, file)
			if err != nil {
				return err
			}
			rows, err := ingest.Parse(data, f)
			if err != nil {
				return err
			}
			attachments, err := loadAttachments(attachDir)
			if err != nil {
				return err
			}
			if batchID == "" {
				batchID = ingest.Fingerprint(data)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.submissions.Submit(cmd.Context(), batchID, rows, attachments)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "spreadsheet (.xlsx) or CSV file to import")
	cmd.Flags().StringVar(&format, "format", "", "csv or spreadsheet (default: from the file extension)")
	cmd.Flags().StringVar(&attachDir, "attachments", "", "directory with one sub-directory per NDC Code holding its attachment")
	cmd.Flags().StringVar(&batchID, "batch", "", "batch id (default: SHA-256 of the file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history KEY",
		Short: "Show the revisions of a record and the attachment of each",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.revisions.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func newKeysCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "keys [FRAGMENT]",
		Short: "List stored NDC Codes containing FRAGMENT",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			fragment := ""
			if len(args) == 1 {
				fragment = args[0]
			}
			keys, err := a.revisions.ListKeys(cmd.Context(), fragment, limit)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of keys")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset BATCH_ID",
		Short: "Allow a batch to be submitted again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.submissions.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s reset\n", args[0])
			return nil
		},
	}
}

func resolveFormat(tag, filename string) (ingest.Format, error) {
	if tag != "" {
		return ingest.ParseFormat(tag)
	}
	return ingest.FormatFromFilename(filename)
}

// loadAttachments reads dir/<KEY>/<file>. A key directory may hold at most one regular file.
func loadAttachments(dir string) (map[string]service.Attachment, error) {
	out := make(map[string]service.Attachment)
	if dir == "" {
		return out, nil
	}
	keys, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read attachments dir: %w", err)
	}
	for _, k := range keys {
		if !k.IsDir() || strings.HasPrefix(k.Name(), ".") {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, k.Name()))
		if err != nil {
			return nil, fmt.Errorf("read attachments for %s: %w", k.Name(), err)
		}
		var files []os.DirEntry
		for _, e := range entries {
			if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
				files = append(files, e)
			}
		}
		switch len(files) {
		case 0:
			continue
		case 1:
		default:
			return nil, fmt.Errorf("attachments for %s: %d files, only one is allowed", k.Name(), len(files))
		}
		content, err := os.ReadFile(filepath.Join(dir, k.Name(), files[0].Name()))
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", k.Name(), err)
		}
		out[k.Name()] = service.Attachment{Filename: files[0].Name(), Content: content}
	}
	return out, nil
}

func printReport(w io.Writer, report *service.SubmissionReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKEY\tSTATUS\tACTION\tREVISION\tATTACHMENT\tERROR")
	for _, r := range report.Rows {
		revision := "-"
		if r.RevisionMarker > 0 {
			revision = fmt.Sprintf("%d.0", r.RevisionMarker)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Line, orDash(r.Key), r.Status, orDash(string(r.Action)), revision, orDash(r.Attachment), r.Error)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nbatch %s: %d rows, %d succeeded, %d partial, %d failed, %d skipped, %d cancelled\n",
		report.BatchID, report.Total, report.Succeeded, report.Partial, report.Failed, report.Skipped, report.Cancelled)
	if len(report.UnmatchedAttachments) > 0 {
		fmt.Fprintf(w, "attachments without a row: %s\n", strings.Join(report.UnmatchedAttachments, ", "))
	}
}

func printHistory(w io.Writer, entries []service.RevisionAttachment) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		name := "-"
		if e.Attachment != nil {
			name = e.Attachment.Name
		}
		fmt.Fprintf(tw, "%s\t%s\n", e.Label, name)
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
