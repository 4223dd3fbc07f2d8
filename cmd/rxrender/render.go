package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"clinicrx/internal/bootstrap"
	"clinicrx/internal/delivery"
	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/config"
	localstore "clinicrx/internal/shared/storage/object/local"
	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

// input is the JSON document rxrender reads.
type input struct {
	Prescription model.ClinicalRecord      `json:"prescription"`
	Patient      model.PatientProfile      `json:"patient"`
	Doctor       model.PractitionerProfile `json:"doctor"`
}

func loadInput(r io.Reader) (input, error) {
	var in input
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return input{}, fmt.Errorf("decode input: %w", err)
	}
	return in, nil
}

// consoleSink prints notifications for a terminal user.
type consoleSink struct {
	w io.Writer
}

func (s consoleSink) Notify(message string, kind feedback.Kind) {
	fmt.Fprintf(s.w, "[%s] %s\n", kind, message)
}

func (s consoleSink) ShowBusy(message string) {
	fmt.Fprintln(s.w, message)
}

func (consoleSink) HideBusy() {}

type renderOptions struct {
	inputPath string
	format    string
	outDir    string
	timezone  string
	archive   bool
	noSave    bool
}

func newRenderCommand() *cobra.Command {
	opts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a prescription JSON file to PDF or JPEG",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "-", "input JSON file, - for stdin")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "pdf", "output format: pdf or jpeg")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory for the saved file")
	cmd.Flags().StringVar(&opts.timezone, "tz", "", "clinic timezone for the printed date (defaults to CLINIC_TIMEZONE)")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "also archive the document with the configured backend")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "skip the local save")
	return cmd
}

func runRender(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	src := stdin
	if opts.inputPath != "" && opts.inputPath != "-" {
		f, err := os.Open(opts.inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	in, err := loadInput(src)
	if err != nil {
		return err
	}

	cfg := config.Load()
	if opts.timezone != "" {
		cfg.ClinicTimezone = opts.timezone
	}
	renderer := &render.Renderer{Location: cfg.Location()}
	art, err := renderer.Render(ctx, format, in.Prescription, in.Patient, in.Doctor)
	if err != nil {
		return err
	}

	sink := consoleSink{w: stderr}
	summary := fmt.Sprintf("rendered %s, %d bytes", format, len(art.Data))
	if format == render.FormatPDF {
		if pages, err := render.PageCount(art.Data); err == nil {
			summary += fmt.Sprintf(", %d page(s)", pages)
		}
	}
	fmt.Fprintln(stderr, summary)

	now := time.Now()
	if !opts.noSave {
		d := &delivery.Deliverer{Store: localstore.New(opts.outDir), Sink: sink, Now: func() time.Time { return now }}
		if path := d.Save(ctx, art, in.Patient.Name); path != "" {
			fmt.Fprintln(stdout, path)
		}
	}

	if opts.archive {
		archiver, err := bootstrap.BuildArchiver(ctx, cfg)
		if err != nil {
			return err
		}
		name := delivery.FileName(in.Patient.Name, format, now)
		label := "PDF"
		if format == render.FormatJPEG {
			label = "JPEG"
		}
		url, err := feedback.Track(ctx, sink, "Uploading "+label+"...", label+" upload failed: ",
			func(ctx context.Context) (string, error) {
				return archiver.Archive(ctx, art, name)
			})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, url)
	}
	return nil
}
