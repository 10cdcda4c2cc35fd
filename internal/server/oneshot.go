package server

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/johbar/mrz-reader-service/pkg/mrz"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
)

type ocrMetadata struct {
	Confidence int    `json:"confidence"`
	Format     string `json:"format"`
	Source     string `json:"source"`
}

// PrintResult processes the files named in args without starting a server. "-" reads from stdin.
//
// Without a configured document type, it prints the confidence (as JSON) on the first line,
// followed by the recognized text, for every file.
// With a document type, every file is treated as a frame of the same document and the MRZ
// is printed as JSON once it was read from enough frames.
func (s *Service) PrintResult(ctx context.Context, w io.Writer, args []string) error {
	if s.conf.DocType != "" {
		return s.printMrz(ctx, w, args, mrz.DocType(s.conf.DocType))
	}
	for _, arg := range args {
		data, err := readInput(arg)
		if err != nil {
			return err
		}
		res, err := s.OCR(ctx, data, tesswrap.Format(s.conf.OutputFormat))
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		meta := ocrMetadata{Confidence: res.Confidence, Format: string(res.Format), Source: arg}
		if err := json.MarshalWrite(w, meta); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\n%s\n", res.Text); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) printMrz(ctx context.Context, w io.Writer, args []string, docType mrz.DocType) error {
	tracker := &mrz.Tracker{MinCount: s.conf.TrackerMinCount}
	found := map[string]MrzResponse{}
	for _, arg := range args {
		data, err := readInput(arg)
		if err != nil {
			return err
		}
		info, conf, err := s.ReadMRZ(ctx, data, docType)
		if err != nil {
			s.log.Info("No MRZ in frame", "source", arg, "err", err)
			tracker.LogFrame()
			continue
		}
		found[info.String()] = MrzResponse{Mrz: info, Confidence: conf}
		tracker.LogFrame(info.String())
	}
	stable, ok := tracker.Stable()
	if !ok {
		return fmt.Errorf("%w in %d frame(s)", mrz.ErrNotFound, len(args))
	}
	if err := json.MarshalWrite(w, found[stable]); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func readInput(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}
